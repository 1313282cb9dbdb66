package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// writeTestKey generates an ed25519 private key and writes it in
// OpenSSH PEM format under dir. It returns the key file path.
func writeTestKey(t *testing.T, dir string) string {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	block, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	keyPath := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	return keyPath
}

// writeTestKeyWithPassphrase is like writeTestKey but encrypts the key.
func writeTestKeyWithPassphrase(t *testing.T, dir, passphrase string) string {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	block, err := ssh.MarshalPrivateKeyWithPassphrase(privKey, "", []byte(passphrase))
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	keyPath := filepath.Join(dir, "id_ed25519_enc")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	return keyPath
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")

	if config.Name != "staging" {
		t.Errorf("expected name 'staging', got '%s'", config.Name)
	}
	if config.Host != "example.com" {
		t.Errorf("expected host 'example.com', got '%s'", config.Host)
	}
	if config.Port != 22 {
		t.Errorf("expected port 22, got %d", config.Port)
	}
	if config.User != "deploy" {
		t.Errorf("expected user 'deploy', got '%s'", config.User)
	}
	if config.Root != "/srv/strata" {
		t.Errorf("expected root '/srv/strata', got '%s'", config.Root)
	}
	if config.AuthMethod != AuthMethodKey {
		t.Errorf("expected key auth, got '%s'", config.AuthMethod)
	}
	if !config.StrictHostKeyChecking {
		t.Error("expected strict host key checking by default")
	}
	if config.ConnectTimeout != 30*time.Second {
		t.Errorf("expected 30s connect timeout, got %v", config.ConnectTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	keyPath := writeTestKey(t, t.TempDir())

	base := func() *Config {
		config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")
		config.PrivateKeyPath = keyPath
		return config
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid key auth",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid password auth",
			modify: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
			},
			wantErr: false,
		},
		{
			name:    "missing name",
			modify:  func(c *Config) { c.Name = "" },
			wantErr: true,
		},
		{
			name:    "missing host",
			modify:  func(c *Config) { c.Host = "" },
			wantErr: true,
		},
		{
			name:    "missing user",
			modify:  func(c *Config) { c.User = "" },
			wantErr: true,
		},
		{
			name:    "missing root",
			modify:  func(c *Config) { c.Root = "" },
			wantErr: true,
		},
		{
			name:    "relative root",
			modify:  func(c *Config) { c.Root = "srv/strata" },
			wantErr: true,
		},
		{
			name:    "port zero",
			modify:  func(c *Config) { c.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port out of range",
			modify:  func(c *Config) { c.Port = 70000 },
			wantErr: true,
		},
		{
			name: "password auth without password",
			modify: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = ""
			},
			wantErr: true,
		},
		{
			name:    "nonexistent key file",
			modify:  func(c *Config) { c.PrivateKeyPath = "/nonexistent/id_rsa" },
			wantErr: true,
		},
		{
			name:    "unknown auth method",
			modify:  func(c *Config) { c.AuthMethod = "agent" },
			wantErr: true,
		},
		{
			name:    "zero connect timeout",
			modify:  func(c *Config) { c.ConnectTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base()
			tt.modify(config)

			err := config.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestConfigValidate_DefaultKeyDiscovery(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")

	if err := config.Validate(); err == nil {
		t.Error("expected error when no default key exists")
	}

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatalf("failed to create .ssh dir: %v", err)
	}
	keyPath := writeTestKey(t, sshDir)
	if err := os.Rename(keyPath, filepath.Join(sshDir, "id_rsa")); err != nil {
		t.Fatalf("failed to rename key: %v", err)
	}

	config = DefaultConfig("staging", "example.com", "deploy", "/srv/strata")
	if err := config.Validate(); err != nil {
		t.Fatalf("expected default key to be discovered: %v", err)
	}
	if config.PrivateKeyPath != filepath.Join(sshDir, "id_rsa") {
		t.Errorf("expected discovered key path, got '%s'", config.PrivateKeyPath)
	}
}

func TestClientConfig(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeTestKey(t, dir)

	t.Run("password auth", func(t *testing.T) {
		config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")
		config.AuthMethod = AuthMethodPassword
		config.Password = "secret"
		config.StrictHostKeyChecking = false

		clientConfig, err := config.clientConfig()
		if err != nil {
			t.Fatalf("failed to build client config: %v", err)
		}
		if clientConfig.User != "deploy" {
			t.Errorf("expected user 'deploy', got '%s'", clientConfig.User)
		}
		if len(clientConfig.Auth) != 2 {
			t.Errorf("expected password and keyboard-interactive auth, got %d methods", len(clientConfig.Auth))
		}
	})

	t.Run("key auth", func(t *testing.T) {
		config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")
		config.PrivateKeyPath = keyPath
		config.StrictHostKeyChecking = false

		clientConfig, err := config.clientConfig()
		if err != nil {
			t.Fatalf("failed to build client config: %v", err)
		}
		if len(clientConfig.Auth) != 1 {
			t.Errorf("expected one auth method, got %d", len(clientConfig.Auth))
		}
		if clientConfig.Timeout != 30*time.Second {
			t.Errorf("expected 30s timeout, got %v", clientConfig.Timeout)
		}
	})

	t.Run("key auth with passphrase", func(t *testing.T) {
		encPath := writeTestKeyWithPassphrase(t, dir, "hunter2")

		config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")
		config.PrivateKeyPath = encPath
		config.PrivateKeyPassphrase = "hunter2"
		config.StrictHostKeyChecking = false

		if _, err := config.clientConfig(); err != nil {
			t.Fatalf("failed to build client config with passphrase: %v", err)
		}

		config.PrivateKeyPassphrase = "wrong"
		if _, err := config.clientConfig(); err == nil {
			t.Error("expected error with wrong passphrase")
		}
	})

	t.Run("corrupt key file", func(t *testing.T) {
		badPath := filepath.Join(dir, "bad_key")
		if err := os.WriteFile(badPath, []byte("not a key"), 0o600); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")
		config.PrivateKeyPath = badPath
		config.StrictHostKeyChecking = false

		if _, err := config.clientConfig(); err == nil {
			t.Error("expected error for corrupt key file")
		}
	})

	t.Run("missing known_hosts with strict checking", func(t *testing.T) {
		config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")
		config.PrivateKeyPath = keyPath
		config.KnownHostsPath = filepath.Join(dir, "missing_known_hosts")

		if _, err := config.clientConfig(); err == nil {
			t.Error("expected error for missing known_hosts file")
		}
	})
}

func TestConfigAddress(t *testing.T) {
	config := DefaultConfig("staging", "example.com", "deploy", "/srv/strata")
	if config.Address() != "example.com:22" {
		t.Errorf("expected 'example.com:22', got '%s'", config.Address())
	}

	config.Port = 2222
	if config.Address() != "example.com:2222" {
		t.Errorf("expected 'example.com:2222', got '%s'", config.Address())
	}
}
