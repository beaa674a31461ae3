package common

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// Digest returns the hex encoded BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WriteFileAtomic replaces path with data by writing a temporary file in the
// same directory and renaming it over the target. The temporary file is
// removed on every failure path, so an interrupted run never leaves a
// truncated target behind. When the target already holds identical content
// nothing is written and written is false.
func WriteFileAtomic(path string, data []byte) (written bool, err error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return false, fmt.Errorf("flush %s: %w", path, err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return false, fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("rename %s: %w", path, err)
	}
	return true, nil
}

// ErrOutsideRoot is returned by JoinWithin for paths escaping the root.
var ErrOutsideRoot = errors.New("path escapes output root")

// JoinWithin joins rel onto root and refuses results outside root.
func JoinWithin(root, rel string) (string, error) {
	joined := filepath.Join(root, rel)
	r, err := filepath.Rel(root, joined)
	if err != nil || r == ".." || len(r) >= 3 && r[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideRoot)
	}
	return joined, nil
}
