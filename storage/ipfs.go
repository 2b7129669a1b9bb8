package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/certificate-registry/interfaces"
)

// IPFSStore pins documents on an IPFS node through its HTTP API.
// Content hashes are the CIDv0 returned by the node.
type IPFSStore struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSStore creates a store talking to the IPFS API at host:port.
func NewIPFSStore(host, port string, timeout time.Duration, log *slog.Logger) *IPFSStore {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSStore{
		shell:       sh,
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
	}
}

// Fetch retrieves a document by CID.
func (s *IPFSStore) Fetch(ctx context.Context, contentHash string) ([]byte, error) {
	start := time.Now()
	path := "/ipfs/" + contentHash

	if !s.shell.IsUp() {
		s.log.Warn("IPFS node unavailable",
			slog.String("host", s.host),
			slog.String("port", s.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := s.shell.Cat(path)
	if err != nil {
		if strings.Contains(err.Error(), "no link named") || strings.Contains(err.Error(), "not found") {
			s.log.Debug("Content not found in IPFS",
				slog.String("path", path),
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, contentHash)
		}

		s.log.Error("Failed to fetch data from IPFS",
			slog.String("path", path),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	s.log.Debug("Fetched content from IPFS",
		slog.String("path", path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store adds and pins data, returning the node's CIDv0.
func (s *IPFSStore) Store(ctx context.Context, data []byte, filename string) (string, error) {
	if !s.shell.IsUp() {
		return "", interfaces.ErrBackendUnavailable
	}

	hash, err := s.shell.Add(bytes.NewReader(data), shell.CidVersion(0), shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("%w: failed to add data to IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}

	s.log.Debug("Stored content in IPFS",
		slog.String("contentHash", hash),
		slog.String("filename", filename))
	return hash, nil
}

func (s *IPFSStore) Available(ctx context.Context) bool {
	return s.shell.IsUp()
}

func (s *IPFSStore) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", s.host, s.port)
}

func (s *IPFSStore) LocationURI() string {
	return s.locationURI
}
