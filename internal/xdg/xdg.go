// Package xdg resolves the on-disk directory this module uses to cache a
// fetched IMC schema.
package xdg

import (
	"os"
	"os/user"
	"path/filepath"
)

// HomeDir returns the calling user's home directory, falling back to $HOME
// when the current user cannot be looked up (e.g. inside a minimal
// container image with no /etc/passwd entry).
func HomeDir() string {
	u, err := user.Current()
	if err == nil && u != nil && u.HomeDir != "" {
		return u.HomeDir
	}
	return os.Getenv("HOME")
}

// IMCDir returns (creating if necessary) the directory this module uses to
// cache schema downloads, defaulting to ~/.imc but honoring $IMC_HOME.
func IMCDir() (string, error) {
	dir := os.Getenv("IMC_HOME")
	if dir == "" {
		dir = filepath.Join(HomeDir(), ".imc")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// IMCDirFile joins name onto IMCDir, creating the directory as needed.
func IMCDirFile(name string) (string, error) {
	dir, err := IMCDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
