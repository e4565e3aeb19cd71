package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// WriteFileAtomic persists content via a same-directory temp file followed by a
// rename, so a reader never observes a half-written document. The parent
// directory is fsynced after the rename where the platform supports it.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)

	tempFile, err := os.CreateTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()

	if err := fillTempFile(tempFile, content, mode); err != nil {
		return err
	}
	if err := renameOverDestination(tempPath, path); err != nil {
		return err
	}
	committed = true

	syncDirectory(parent)
	return nil
}

// WriteCanonicalDocument writes pre-canonicalized bytes with a trailing newline,
// the on-disk form shared by every hashable artifact.
func WriteCanonicalDocument(path string, canonical []byte, mode os.FileMode) error {
	content := make([]byte, 0, len(canonical)+1)
	content = append(content, canonical...)
	content = append(content, '\n')
	return WriteFileAtomic(path, content, mode)
}

func fillTempFile(tempFile *os.File, content []byte, mode os.FileMode) error {
	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

func renameOverDestination(tempPath, path string) error {
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(tempPath, path); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	return nil
}

func syncDirectory(path string) {
	// #nosec G304 -- directory path derives from an explicit caller-provided destination.
	if handle, err := os.Open(path); err == nil {
		_ = handle.Sync()
		_ = handle.Close()
	}
}

// ValidatePath accepts local relative or absolute paths and rejects everything else.
func ValidatePath(path string) (string, error) {
	cleanPath := filepath.Clean(path)
	if filepath.IsLocal(cleanPath) {
		return cleanPath, nil
	}
	if strings.HasPrefix(cleanPath, string(filepath.Separator)) {
		return cleanPath, nil
	}
	if volume := filepath.VolumeName(cleanPath); volume != "" && strings.HasPrefix(cleanPath, volume+string(filepath.Separator)) {
		return cleanPath, nil
	}
	return "", fmt.Errorf("path must be local relative or absolute")
}
