package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

type Storage struct{}

// FileStats holds metadata about a file without reading its contents.
type FileStats struct {
	SizeBytes int64
	ModTime   time.Time
}

// Written describes a file committed by WriteAtomic.
type Written struct {
	Path        string
	SizeBytes   int64
	ContentHash string
}

// WriteAtomic streams fill's output into a temp file next to filePath and
// renames it into place. A failed fill leaves no partial file behind.
func (s *Storage) WriteAtomic(filePath string, fill func(w io.Writer) error) (*Written, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hash := sha256.New()
	counter := &countingWriter{}
	if err := fill(io.MultiWriter(tmp, hash, counter)); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	return &Written{
		Path:        filePath,
		SizeBytes:   counter.n,
		ContentHash: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

func (s *Storage) SaveFile(filePath string, content []byte) error {
	_, err := s.WriteAtomic(filePath, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
	if err != nil {
		return fmt.Errorf("error saving file: %w", err)
	}
	return nil
}

// HasFile reports whether a non-empty regular file exists at fn.
func (s *Storage) HasFile(fn string) bool {
	info, err := os.Stat(fn)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// GetFileStats returns metadata about a file using os.Stat (no I/O overhead).
func (s *Storage) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("error getting file stats: %w", err)
	}

	return &FileStats{
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}

// HashFile returns the hex sha256 of a file on disk.
func (s *Storage) HashFile(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("error hashing file: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
