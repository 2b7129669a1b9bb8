package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/certificate-registry/interfaces"
)

// MultiStore replicates documents across several stores.
// Writes go to every available store and the first store's hash is returned;
// reads fall back in order. Stores should share an addressing scheme
// (file, S3 and memory use raw CIDv1; IPFS and Pinata use CIDv0).
type MultiStore struct {
	stores []interfaces.ContentStore
	log    *slog.Logger
}

// NewMultiStore creates a replicating store.
func NewMultiStore(stores []interfaces.ContentStore, logger *slog.Logger) *MultiStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStore{
		stores: stores,
		log:    logger,
	}
}

// Fetch returns the first copy whose bytes match contentHash.
func (m *MultiStore) Fetch(ctx context.Context, contentHash string) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, store := range m.stores {
		if !store.Available(ctx) {
			m.log.Debug("Store unavailable",
				slog.String("store", store.Name()),
				slog.String("contentHash", contentHash))
			errs = append(errs, fmt.Errorf("%s: %w", store.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := store.Fetch(ctx, contentHash)
		if err == nil {
			err = VerifyContent(contentHash, data)
		}
		if err == nil {
			m.log.Debug("Fetched content",
				slog.String("store", store.Name()),
				slog.String("contentHash", contentHash),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrContentNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
		m.log.Debug("Failed to fetch from store",
			slog.String("store", store.Name()),
			slog.String("contentHash", contentHash),
			"err", err)
	}

	if notFound > 0 && notFound == len(errs) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, contentHash)
	}

	m.log.Error("All stores failed to fetch content",
		slog.String("contentHash", contentHash),
		slog.Int("failedStores", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return nil, fmt.Errorf("%w: all stores failed to fetch %s: %w", interfaces.ErrBackendUnavailable, contentHash, errors.Join(errs...))
}

// Store writes data to every available store.
func (m *MultiStore) Store(ctx context.Context, data []byte, filename string) (string, error) {
	start := time.Now()
	var result string
	var errs []error

	for _, store := range m.stores {
		if !store.Available(ctx) {
			m.log.Debug("Store unavailable", slog.String("store", store.Name()))
			errs = append(errs, fmt.Errorf("%s: %w", store.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		hash, err := store.Store(ctx, data, filename)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
			m.log.Debug("Failed to store to store",
				slog.String("store", store.Name()),
				"err", err)
			continue
		}

		if result == "" {
			result = hash
			m.log.Info("Stored content",
				slog.String("store", store.Name()),
				slog.String("contentHash", hash),
				slog.Duration("duration", time.Since(start)))
		} else if result != hash {
			m.log.Warn("Inconsistent hashes from stores",
				slog.String("store", store.Name()),
				slog.String("expected", result),
				slog.String("actual", hash))
		}
	}

	if result == "" {
		m.log.Error("All stores failed to store data",
			slog.Int("failedStores", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return "", storeFailure(errs)
	}
	return result, nil
}

// storeFailure reports a retryable error only when every store failed transiently.
// Transient errors are dropped from a permanent failure so it is not retried.
func storeFailure(errs []error) error {
	var permanent []error
	for _, err := range errs {
		if !interfaces.IsRetryable(err) {
			permanent = append(permanent, err)
		}
	}
	if len(permanent) > 0 {
		return fmt.Errorf("all stores failed to store data: %w", errors.Join(permanent...))
	}
	return fmt.Errorf("%w: all stores failed to store data: %w", interfaces.ErrBackendUnavailable, errors.Join(errs...))
}

// Available reports whether any store is available.
func (m *MultiStore) Available(ctx context.Context) bool {
	for _, store := range m.stores {
		if store.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiStore) Name() string {
	return "multi-store"
}

// LocationURI combines the URIs of all stores.
func (m *MultiStore) LocationURI() string {
	locations := make([]string, 0, len(m.stores))
	for _, store := range m.stores {
		locations = append(locations, store.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
