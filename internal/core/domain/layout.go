package domain

import "path/filepath"

const (
	// VigilDirName is the name of the internal metadata directory.
	VigilDirName = ".vigil"

	// CacheFileName is the name of the on-disk cache document.
	CacheFileName = "cache.json"

	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "vigil.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultCachePath returns the default path for the on-disk cache document.
func DefaultCachePath() string {
	return filepath.Join(VigilDirName, CacheFileName)
}
