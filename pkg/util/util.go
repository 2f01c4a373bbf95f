package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Permission constants for file and directory modes.
const (
	// PermUserWrite is the user-write permission bit (0200).
	PermUserWrite os.FileMode = 0200

	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
)

// WithUserWritePermission ensures that any directory/file permission has the owner-write
// bit (0200) set. This prevents the syncing user from being locked out of the
// destination on subsequent runs when the source carries read-only permissions.
func WithUserWritePermission(basePerm os.FileMode) os.FileMode {
	return basePerm | PermUserWrite
}

// NormalizePath converts a path into the canonical key form used throughout
// the system: forward slashes and NFC-composed Unicode. Filesystems disagree
// on both (Windows separators, macOS NFD decomposition), and keys must compare
// equal whenever the underlying names do.
func NormalizePath(p string) string {
	return norm.NFC.String(filepath.ToSlash(p))
}

// NormalizedRelPath returns the normalized relative path key of absPath under
// root. The key identifies a file across scan roots and cache entries; it is
// NOT suitable for direct filesystem access.
func NormalizedRelPath(root, absPath string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", fmt.Errorf("could not get relative path of %s under %s: %w", absPath, root, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s escapes root %s", absPath, root)
	}
	return NormalizePath(rel), nil
}

// DenormalizedAbsPath converts a normalized relative path key back into an
// OS-native absolute path under root, for filesystem access.
func DenormalizedAbsPath(root, relPathKey string) string {
	return filepath.Join(root, filepath.FromSlash(relPathKey))
}

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	return filepath.Join(home, path[1:]), nil
}
