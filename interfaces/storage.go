package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StorageBackendLocation is a parsed content store URI of the form
// scheme://[user:secret@]host[/path][?params].
type StorageBackendLocation struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Query  url.Values

	user *url.Userinfo
}

var storageSchemes = map[string]bool{
	"memory": true,
	"file":   true,
	"s3":     true,
	"ipfs":   true,
	"pinata": true,
}

// NewStorageBackendLocation parses uri and rejects unknown schemes.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if !storageSchemes[scheme] {
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		user:   parsed.User,
	}, nil
}

// Credentials returns the decoded user and secret embedded in the URI.
func (loc StorageBackendLocation) Credentials() (user, secret string) {
	if loc.user == nil {
		return "", ""
	}
	secret, _ = loc.user.Password()
	return loc.user.Username(), secret
}

// Redacted returns the URI with any embedded credentials masked, for logs.
func (loc StorageBackendLocation) Redacted() string {
	if loc.user == nil {
		return loc.Raw
	}
	u := url.URL{Scheme: loc.Scheme, Host: loc.Host, Path: loc.Path, RawQuery: loc.Query.Encode()}
	return strings.Replace(u.String(), "://", "://***@", 1)
}

func (loc StorageBackendLocation) String() string {
	return loc.Redacted()
}

// Param returns the query parameter name, or def when it is absent.
func (loc StorageBackendLocation) Param(name, def string) string {
	if v := loc.Query.Get(name); v != "" {
		return v
	}
	return def
}

// BoolParam reports whether the query parameter name is set to a true value.
func (loc StorageBackendLocation) BoolParam(name string) bool {
	switch strings.ToLower(loc.Query.Get(name)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// DurationParam parses the query parameter name as a duration, returning def when absent.
func (loc StorageBackendLocation) DurationParam(name string, def time.Duration) (time.Duration, error) {
	raw := loc.Query.Get(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrInvalidLocationURI, name, raw)
	}
	return d, nil
}

var (
	// ErrContentNotFound is returned when requested content cannot be found in the store.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a content store is not accessible.
	// It matches ErrUpstreamUnavailable.
	ErrBackendUnavailable = fmt.Errorf("storage backend unavailable: %w", ErrUpstreamUnavailable)

	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// ContentStore provides content-addressed document storage.
type ContentStore interface {
	// Store saves data under the given file name and returns its content hash (a CID).
	Store(ctx context.Context, data []byte, filename string) (string, error)

	// Fetch retrieves data by content hash.
	Fetch(ctx context.Context, contentHash string) ([]byte, error)

	// Available checks if the store is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this store.
	LocationURI() string
}

// ContentStoreFactory creates content stores.
type ContentStoreFactory interface {
	// StoreFor creates a store from URI.
	// Supports memory://, file://, s3://, ipfs://, pinata://
	StoreFor(location StorageBackendLocation) (ContentStore, error)

	// CreateMultiStore creates a replicating store.
	CreateMultiStore(locations []StorageBackendLocation) (ContentStore, error)
}
