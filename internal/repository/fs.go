package repository

import "github.com/spf13/afero"

// FileSystemRepository is the filesystem holding stackops state: the
// history records and the working-copy lock. Cross-process locking is only
// enabled when it is backed by the OS filesystem.
type FileSystemRepository interface {
	afero.Fs
}

// NewFileSystemRepository wraps fs. Tests pass afero.NewMemMapFs.
func NewFileSystemRepository(fs afero.Fs) FileSystemRepository {
	if fs == nil {
		return afero.NewOsFs()
	}
	return fs
}
