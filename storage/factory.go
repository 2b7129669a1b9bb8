package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/certificate-registry/interfaces"
)

// StoreFactory creates content stores from location URIs.
type StoreFactory struct {
	log          *slog.Logger
	pinataKey    string
	pinataSecret string
	gatewayURL   string
}

// NewStoreFactory creates a factory.
func NewStoreFactory(logger *slog.Logger) *StoreFactory {
	return &StoreFactory{log: logger}
}

// SetPinataCredentials sets the keys used for pinata:// locations that carry none.
func (sf *StoreFactory) SetPinataCredentials(apiKey, secretKey string) {
	sf.pinataKey = apiKey
	sf.pinataSecret = secretKey
}

// SetGatewayURL sets the gateway used by pinata:// locations without a gateway parameter.
func (sf *StoreFactory) SetGatewayURL(gatewayURL string) {
	sf.gatewayURL = gatewayURL
}

// StoreFor creates a store from a location URI.
//
// Supported schemes:
//   - memory:// - in-process store
//   - file:///var/lib/certificates/
//   - s3://[KEY:SECRET@]bucket/prefix/?region=us-west-2&endpoint=http://minio:9000&pathStyle=true
//   - ipfs://host:5001/?timeout=30s
//   - pinata://[KEY:SECRET@]api.pinata.cloud/?gateway=https://gateway.pinata.cloud/ipfs/&insecure=false
func (sf *StoreFactory) StoreFor(location interfaces.StorageBackendLocation) (interfaces.ContentStore, error) {
	switch location.Scheme {
	case "memory":
		return NewMemoryStore(sf.log), nil
	case "file":
		return sf.createFileStore(location)
	case "s3":
		return sf.createS3Store(location)
	case "ipfs":
		return sf.createIPFSStore(location)
	case "pinata":
		return sf.createPinataStore(location)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiStore creates a replicating store from every location that could be opened.
// A single location yields that store directly.
func (sf *StoreFactory) CreateMultiStore(locations []interfaces.StorageBackendLocation) (interfaces.ContentStore, error) {
	stores := make([]interfaces.ContentStore, 0, len(locations))

	for _, location := range locations {
		store, err := sf.StoreFor(location)
		if err != nil {
			sf.log.Warn("Failed to create content store",
				"err", err,
				slog.String("locationURI", location.Redacted()))
			continue
		}
		stores = append(stores, store)
	}

	switch len(stores) {
	case 0:
		return nil, fmt.Errorf("no valid content stores created")
	case 1:
		return stores[0], nil
	default:
		return NewMultiStore(stores, sf.log), nil
	}
}

// createFileStore handles file:///absolute/path and file://./relative/path.
func (sf *StoreFactory) createFileStore(location interfaces.StorageBackendLocation) (interfaces.ContentStore, error) {
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in %s", interfaces.ErrInvalidLocationURI, location)
	}

	sf.log.Debug("Creating file store", slog.String("path", path))
	return NewFileStore(path, sf.log)
}

func (sf *StoreFactory) createS3Store(location interfaces.StorageBackendLocation) (interfaces.ContentStore, error) {
	accessKey, secretKey := location.Credentials()

	sf.log.Debug("Creating S3 store", slog.String("bucket", location.Host))
	return NewS3Store(S3Options{
		Bucket:    location.Host,
		Prefix:    strings.TrimPrefix(location.Path, "/"),
		Region:    location.Param("region", ""),
		Endpoint:  location.Param("endpoint", ""),
		AccessKey: accessKey,
		SecretKey: secretKey,
		PathStyle: location.BoolParam("pathStyle"),
	}, sf.log)
}

func (sf *StoreFactory) createIPFSStore(location interfaces.StorageBackendLocation) (interfaces.ContentStore, error) {
	host, port, found := strings.Cut(location.Host, ":")
	if host == "" {
		return nil, fmt.Errorf("%w: missing IPFS host in %s", interfaces.ErrInvalidLocationURI, location)
	}
	if !found || port == "" {
		port = "5001"
	}

	timeout, err := location.DurationParam("timeout", 30*time.Second)
	if err != nil {
		return nil, err
	}

	sf.log.Debug("Creating IPFS store", slog.String("host", host), slog.String("port", port))
	return NewIPFSStore(host, port, timeout, sf.log), nil
}

func (sf *StoreFactory) createPinataStore(location interfaces.StorageBackendLocation) (interfaces.ContentStore, error) {
	apiKey, secretKey := location.Credentials()
	if apiKey == "" {
		apiKey, secretKey = sf.pinataKey, sf.pinataSecret
	}

	apiURL := DefaultPinataAPIURL
	if location.Host != "" {
		scheme := "https://"
		if location.BoolParam("insecure") {
			scheme = "http://"
		}
		apiURL = scheme + location.Host
	}

	gateway := location.Param("gateway", sf.gatewayURL)

	sf.log.Debug("Creating Pinata store", slog.String("api", apiURL))
	return NewPinataStore(PinataOptions{
		APIKey:     apiKey,
		SecretKey:  secretKey,
		APIURL:     apiURL,
		GatewayURL: gateway,
	}, sf.log)
}

var _ interfaces.ContentStoreFactory = (*StoreFactory)(nil)
