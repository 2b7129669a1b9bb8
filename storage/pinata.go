package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/certificate-registry/interfaces"
)

const (
	// DefaultPinataAPIURL is the Pinata pinning API root.
	DefaultPinataAPIURL = "https://api.pinata.cloud"
	// DefaultGatewayURL serves pinned content by CID.
	DefaultGatewayURL = "https://gateway.pinata.cloud/ipfs/"
)

// PinataOptions configures a PinataStore.
type PinataOptions struct {
	APIKey     string
	SecretKey  string
	APIURL     string
	GatewayURL string
	Timeout    time.Duration
	RetryMax   int
	// RetryWaitMin and RetryWaitMax bound the delay between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// PinataStore pins documents through the Pinata API and reads them back
// through an IPFS gateway. Content hashes are CIDv0.
type PinataStore struct {
	client     *retryablehttp.Client
	apiKey     string
	secretKey  string
	apiURL     string
	gatewayURL string
	log        *slog.Logger
}

type pinFileResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// NewPinataStore creates a Pinata store. Both API keys are required.
func NewPinataStore(opts PinataOptions, log *slog.Logger) (*PinataStore, error) {
	if opts.APIKey == "" || opts.SecretKey == "" {
		return nil, errors.New("pinata: API key and secret key required")
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultPinataAPIURL
	}
	if opts.GatewayURL == "" {
		opts.GatewayURL = DefaultGatewayURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	client := retryablehttp.NewClient()
	client.Logger = log
	client.HTTPClient.Timeout = opts.Timeout
	if opts.RetryMax > 0 {
		client.RetryMax = opts.RetryMax
	}
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}

	return &PinataStore{
		client:     client,
		apiKey:     opts.APIKey,
		secretKey:  opts.SecretKey,
		apiURL:     strings.TrimSuffix(opts.APIURL, "/"),
		gatewayURL: strings.TrimSuffix(opts.GatewayURL, "/") + "/",
		log:        log,
	}, nil
}

// Store pins data as a file named filename.
func (s *PinataStore) Store(ctx context.Context, data []byte, filename string) (string, error) {
	start := time.Now()

	body, contentType, err := pinFileForm(data, filename)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/pinning/pinFileToIPFS", body)
	if err != nil {
		return "", fmt.Errorf("failed to create pinata request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("Failed to upload to Pinata", "err", err, slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("%w: pinata upload: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("pinata upload returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
		}
		return "", err
	}

	var pinned pinFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", fmt.Errorf("failed to decode pinata response: %w", err)
	}
	if pinned.IpfsHash == "" {
		return "", errors.New("pinata response carries no IpfsHash")
	}

	s.log.Debug("Pinned content on Pinata",
		slog.String("contentHash", pinned.IpfsHash),
		slog.String("filename", filename),
		slog.Int64("pinSize", pinned.PinSize),
		slog.Duration("duration", time.Since(start)))
	return pinned.IpfsHash, nil
}

// Fetch reads a document from the gateway.
func (s *PinataStore) Fetch(ctx context.Context, contentHash string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.GatewayURL(contentHash), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway fetch: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, contentHash)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: gateway returned %s", interfaces.ErrBackendUnavailable, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	return data, nil
}

// Available checks the API keys against Pinata's authentication endpoint.
func (s *PinataStore) Available(ctx context.Context) bool {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"/data/testAuthentication", nil)
	if err != nil {
		return false
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("Pinata unavailable", "err", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (s *PinataStore) Name() string {
	return "pinata"
}

func (s *PinataStore) LocationURI() string {
	return "pinata://" + strings.TrimPrefix(strings.TrimPrefix(s.apiURL, "https://"), "http://")
}

// GatewayURL returns the public link for contentHash.
func (s *PinataStore) GatewayURL(contentHash string) string {
	return s.gatewayURL + contentHash
}

func (s *PinataStore) authorize(req *retryablehttp.Request) {
	req.Header.Set("pinata_api_key", s.apiKey)
	req.Header.Set("pinata_secret_api_key", s.secretKey)
}

// pinFileForm builds the multipart body expected by pinFileToIPFS.
func pinFileForm(data []byte, filename string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	metadata, err := json.Marshal(map[string]string{"name": filename})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("pinataMetadata", string(metadata)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("pinataOptions", `{"cidVersion":0}`); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
