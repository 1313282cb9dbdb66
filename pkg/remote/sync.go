package remote

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
)

// Result aggregates the outcome of a push or pull.
type Result struct {
	Remote      string
	Transferred int
	Skipped     int
	Bytes       int64
	Duration    time.Duration
}

// Push mirrors the local workspace root to the remote root. Hidden
// entries (dot-prefixed names) are skipped, so local state such as
// .strata never leaves the machine. Files whose size and modification
// time already match the remote copy are not re-uploaded.
func (c *Client) Push(ctx context.Context, localRoot string) (*Result, error) {
	sftpClient, err := c.session()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Remote: c.config.Name}

	c.logger.Info().Str("local", localRoot).Str("root", c.config.Root).Msg("Pushing workspace")

	err = filepath.WalkDir(localRoot, func(localPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if localPath != localRoot && skipName(entry.Name()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(localRoot, localPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		remotePath := path.Join(c.config.Root, filepath.ToSlash(rel))

		if entry.IsDir() {
			if err := sftpClient.MkdirAll(remotePath); err != nil {
				return fmt.Errorf("failed to create remote directory %s: %w", remotePath, err)
			}
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		if remoteUpToDate(sftpClient, remotePath, info) {
			result.Skipped++
			return nil
		}

		written, err := c.uploadFile(ctx, sftpClient, localPath, remotePath, info)
		if err != nil {
			return err
		}

		result.Transferred++
		result.Bytes += written
		return nil
	})
	if err != nil {
		return result, &SyncError{Remote: c.config.Name, Op: "push", Err: err}
	}

	if c.config.PostSyncCommand != "" {
		c.logger.Debug().Str("command", c.config.PostSyncCommand).Msg("Running post-sync command")
		if _, _, err := c.RunCommand(ctx, c.config.PostSyncCommand); err != nil {
			return result, err
		}
	}

	result.Duration = time.Since(start)
	c.logger.Info().
		Int("transferred", result.Transferred).
		Int("skipped", result.Skipped).
		Int64("bytes", result.Bytes).
		Dur("duration", result.Duration).
		Msg("Push completed")

	return result, nil
}

// Pull mirrors the remote root back into the local workspace root.
// Hidden entries are skipped and up-to-date local files are kept.
func (c *Client) Pull(ctx context.Context, localRoot string) (*Result, error) {
	sftpClient, err := c.session()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Remote: c.config.Name}

	c.logger.Info().Str("root", c.config.Root).Str("local", localRoot).Msg("Pulling workspace")

	walker := sftpClient.Walk(c.config.Root)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return result, &SyncError{Remote: c.config.Name, Op: "pull", Err: err}
		}

		remotePath := walker.Path()
		rel, err := relRemote(c.config.Root, remotePath)
		if err != nil {
			return result, &SyncError{Remote: c.config.Name, Op: "pull", Err: err}
		}
		if rel == "." {
			continue
		}

		info := walker.Stat()
		if skipName(path.Base(remotePath)) {
			if info.IsDir() {
				walker.SkipDir()
			}
			continue
		}

		localPath := filepath.Join(localRoot, filepath.FromSlash(rel))

		if info.IsDir() {
			if err := os.MkdirAll(localPath, 0o755); err != nil {
				return result, &SyncError{Remote: c.config.Name, Op: "pull", Err: err}
			}
			continue
		}

		if localUpToDate(localPath, info) {
			result.Skipped++
			continue
		}

		written, err := c.downloadFile(ctx, sftpClient, remotePath, localPath, info)
		if err != nil {
			return result, &SyncError{Remote: c.config.Name, Op: "pull", Err: err}
		}

		result.Transferred++
		result.Bytes += written
	}

	result.Duration = time.Since(start)
	c.logger.Info().
		Int("transferred", result.Transferred).
		Int("skipped", result.Skipped).
		Int64("bytes", result.Bytes).
		Dur("duration", result.Duration).
		Msg("Pull completed")

	return result, nil
}

// uploadFile copies one local file to the remote, preserving its
// permissions and modification time.
func (c *Client) uploadFile(ctx context.Context, sftpClient *sftp.Client, localPath, remotePath string, info fs.FileInfo) (int64, error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer localFile.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return 0, fmt.Errorf("failed to create remote directory %s: %w", path.Dir(remotePath), err)
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}

	written, err := copyCtx(ctx, remoteFile, localFile)
	if closeErr := remoteFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return written, fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	if err := sftpClient.Chmod(remotePath, info.Mode().Perm()); err != nil {
		c.logger.Warn().Err(err).Str("path", remotePath).Msg("Failed to set remote permissions")
	}
	if err := sftpClient.Chtimes(remotePath, time.Now(), info.ModTime()); err != nil {
		c.logger.Warn().Err(err).Str("path", remotePath).Msg("Failed to set remote mtime")
	}

	c.logger.Debug().Str("local", localPath).Str("remote", remotePath).Int64("bytes", written).Msg("Uploaded file")
	return written, nil
}

// downloadFile copies one remote file to the local workspace,
// preserving its modification time.
func (c *Client) downloadFile(ctx context.Context, sftpClient *sftp.Client, remotePath, localPath string, info fs.FileInfo) (int64, error) {
	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", remotePath, err)
	}
	defer remoteFile.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(localPath), err)
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	written, err := copyCtx(ctx, localFile, remoteFile)
	if closeErr := localFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return written, fmt.Errorf("failed to download %s: %w", remotePath, err)
	}

	if err := os.Chtimes(localPath, time.Now(), info.ModTime()); err != nil {
		c.logger.Warn().Err(err).Str("path", localPath).Msg("Failed to set local mtime")
	}

	c.logger.Debug().Str("remote", remotePath).Str("local", localPath).Int64("bytes", written).Msg("Downloaded file")
	return written, nil
}

// remoteUpToDate reports whether the remote copy already matches the
// local file's size and is at least as new. SFTP mtimes carry second
// resolution, so the local time is truncated before comparing.
func remoteUpToDate(sftpClient *sftp.Client, remotePath string, local fs.FileInfo) bool {
	stat, err := sftpClient.Stat(remotePath)
	if err != nil {
		return false
	}
	return stat.Size() == local.Size() &&
		!stat.ModTime().Before(local.ModTime().Truncate(time.Second))
}

// localUpToDate reports whether the local copy already matches the
// remote file's size and is at least as new.
func localUpToDate(localPath string, remote fs.FileInfo) bool {
	stat, err := os.Stat(localPath)
	if err != nil {
		return false
	}
	return stat.Size() == remote.Size() &&
		!stat.ModTime().Truncate(time.Second).Before(remote.ModTime())
}

// skipName reports whether a directory entry is excluded from sync.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".")
}

// relRemote returns the slash-separated path of p relative to root,
// or an error when p lies outside root.
func relRemote(root, p string) (string, error) {
	root = path.Clean(root)
	p = path.Clean(p)

	if p == root {
		return ".", nil
	}
	if !strings.HasPrefix(p, root+"/") {
		return "", fmt.Errorf("path %s is outside remote root %s", p, root)
	}
	return strings.TrimPrefix(p, root+"/"), nil
}

// copyCtx copies src to dst in chunks, checking for cancellation
// between chunks.
func copyCtx(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
