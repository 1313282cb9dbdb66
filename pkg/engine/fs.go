package engine

import (
	"io/fs"
	"os"
)

// File permissions for documents and the directories that hold them.
const (
	documentFileMode = 0o644
	documentDirMode  = 0o755
)

// FileSystem abstracts the file operations the engine performs. The
// engine goes through this seam for every read, write, and stat, which
// lets tests observe exactly which paths were touched.
type FileSystem interface {
	// ReadFile returns the contents of the named file. A missing file is
	// reported with an error matching fs.ErrNotExist.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(path string, data []byte, perm fs.FileMode) error

	// Stat returns metadata for the named file.
	Stat(path string) (fs.FileInfo, error)

	// MkdirAll creates the named directory along with any missing parents.
	MkdirAll(path string, perm fs.FileMode) error
}

// OSFileSystem is the FileSystem backed by the host operating system.
type OSFileSystem struct{}

// NewOSFileSystem creates a FileSystem backed by the host operating
// system.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// ReadFile implements FileSystem.
func (*OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile implements FileSystem.
func (*OSFileSystem) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

// Stat implements FileSystem.
func (*OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// MkdirAll implements FileSystem.
func (*OSFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}
