// Package remote mirrors a workspace to another host over SFTP.
//
// A remote is a named SSH endpoint plus a directory on that host. Push
// uploads the local workspace tree into that directory, Pull downloads
// it back, and both skip files whose size and modification time already
// match. An optional post-sync command runs on the remote after a push,
// typically to reload whatever consumes the documents there.
package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod selects how the SSH session authenticates.
type AuthMethod string

const (
	// AuthMethodPassword authenticates with a password.
	AuthMethodPassword AuthMethod = "password"

	// AuthMethodKey authenticates with a private key file.
	AuthMethodKey AuthMethod = "key"
)

var validate = validator.New()

// Config describes a single sync remote.
type Config struct {
	// Name identifies the remote in commands and logs.
	Name string `yaml:"name" validate:"required"`

	// Host is the remote hostname or IP address.
	Host string `yaml:"host" validate:"required"`

	// Port is the SSH port.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// User is the SSH username.
	User string `yaml:"user" validate:"required"`

	// Root is the directory on the remote host that receives the
	// workspace tree. It must be absolute.
	Root string `yaml:"root" validate:"required"`

	// AuthMethod selects password or key authentication.
	AuthMethod AuthMethod `yaml:"auth_method" validate:"oneof=password key"`

	// Password is used when AuthMethod is "password".
	Password string `yaml:"password,omitempty"`

	// PrivateKeyPath is the key file used when AuthMethod is "key".
	// If empty, Validate probes the usual ~/.ssh locations.
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`

	// PrivateKeyPassphrase decrypts an encrypted private key.
	PrivateKeyPassphrase string `yaml:"private_key_passphrase,omitempty"`

	// KnownHostsPath is the path to the known_hosts file.
	// If empty, host key verification is disabled.
	KnownHostsPath string `yaml:"known_hosts_path,omitempty"`

	// StrictHostKeyChecking rejects hosts not present in known_hosts.
	StrictHostKeyChecking bool `yaml:"strict_host_key_checking"`

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// PostSyncCommand runs on the remote after a successful push.
	PostSyncCommand string `yaml:"post_sync_command,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig(name, host, user, root string) *Config {
	return &Config{
		Name:                  name,
		Host:                  host,
		Port:                  22,
		User:                  user,
		Root:                  root,
		AuthMethod:            AuthMethodKey,
		KnownHostsPath:        filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectTimeout:        30 * time.Second,
	}
}

// Validate checks the configuration and fills in a default private key
// path when key authentication is selected without one.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("remote %q: %w", c.Name, err)
	}

	switch c.AuthMethod {
	case AuthMethodPassword:
		if c.Password == "" {
			return fmt.Errorf("remote %q: password is required for password authentication", c.Name)
		}

	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			homeDir := os.Getenv("HOME")
			defaultKeys := []string{
				filepath.Join(homeDir, ".ssh", "id_ed25519"),
				filepath.Join(homeDir, ".ssh", "id_rsa"),
				filepath.Join(homeDir, ".ssh", "id_ecdsa"),
			}
			for _, keyPath := range defaultKeys {
				if _, err := os.Stat(keyPath); err == nil {
					c.PrivateKeyPath = keyPath
					break
				}
			}
			if c.PrivateKeyPath == "" {
				return fmt.Errorf("remote %q: no private key configured and no default key found", c.Name)
			}
		}
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("remote %q: private key file not found: %s", c.Name, c.PrivateKeyPath)
		}
	}

	if !filepath.IsAbs(c.Root) {
		return fmt.Errorf("remote %q: root must be an absolute path, got %s", c.Name, c.Root)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("remote %q: connect timeout must be positive", c.Name)
	}

	return nil
}

// Address returns the host:port dial address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// clientConfig builds the ssh.ClientConfig for this remote.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch c.AuthMethod {
	case AuthMethodPassword:
		authMethods = append(authMethods, ssh.Password(c.Password))
		// Some servers only offer keyboard-interactive for passwords.
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))

	case AuthMethodKey:
		keyData, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key %s: %w", c.PrivateKeyPath, err)
		}

		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", c.PrivateKeyPath, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))

	default:
		return nil, fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" && c.StrictHostKeyChecking {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}
