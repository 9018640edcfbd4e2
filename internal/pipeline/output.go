package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

// ValidateInput checks that path names a non-empty regular file.
func ValidateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input %s: %w: %w", path, domain.ErrInputValidation, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("input %s: %w: not a regular file", path, domain.ErrInputValidation)
	}
	if info.Size() == 0 {
		return fmt.Errorf("input %s: %w: zero-length file", path, domain.ErrInputValidation)
	}
	return nil
}

// OutputLocation derives the product path for an archive and creates its
// directory: {baseDir}/{site}/{date}/{sdf}/{site}.{label}.{sdf}.h5.
func OutputLocation(archivePath, baseDir string) (string, error) {
	meta, err := domain.ParseArchiveName(archivePath)
	if err != nil {
		return "", err
	}
	dir := meta.OutputDir(baseDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return filepath.Join(dir, meta.OutputName()), nil
}

// ResolveOutput picks where a merged archive is written. An explicit path
// wins. Otherwise a path is derived from the archive name unless the caller
// keeps the result in memory, in which case "" is returned.
func ResolveOutput(archivePath, explicit, baseDir string, inMemory bool) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if inMemory {
		return "", nil
	}
	if baseDir == "" {
		baseDir = "."
	}
	return OutputLocation(archivePath, baseDir)
}
