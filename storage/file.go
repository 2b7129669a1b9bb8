package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/certificate-registry/interfaces"
)

// FileStore keeps documents on the local file system.
// Each document is written to a file named by its content hash.
type FileStore struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileStore creates a file store rooted at baseDir, creating the directory if needed.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileStore{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads the document stored under contentHash.
func (s *FileStore) Fetch(ctx context.Context, contentHash string) ([]byte, error) {
	filePath, err := s.filePath(contentHash)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, contentHash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	s.log.Debug("Fetched content from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))
	return data, nil
}

// Store writes data and returns its CID. The file name is only logged.
func (s *FileStore) Store(ctx context.Context, data []byte, filename string) (string, error) {
	hash, err := ComputeCID(data)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(s.baseDir, hash)
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.String("filename", filename),
		slog.String("contentHash", hash))
	return hash, nil
}

// Available checks that the base directory exists.
func (s *FileStore) Available(ctx context.Context) bool {
	if _, err := os.Stat(s.baseDir); err != nil {
		s.log.Debug("File store unavailable", "err", err)
		return false
	}
	return true
}

func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

func (s *FileStore) LocationURI() string {
	return s.locationURI
}

// filePath rejects hashes that would escape the base directory.
func (s *FileStore) filePath(contentHash string) (string, error) {
	if contentHash == "" || contentHash != filepath.Base(contentHash) || contentHash == "." || contentHash == ".." {
		return "", fmt.Errorf("%w: invalid content hash %q", interfaces.ErrContentNotFound, contentHash)
	}
	return filepath.Join(s.baseDir, contentHash), nil
}
