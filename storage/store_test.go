package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCID(t *testing.T) {
	a, err := ComputeCID([]byte("%PDF-1.3 certificate"))
	require.NoError(t, err)
	b, err := ComputeCID([]byte("%PDF-1.3 certificate"))
	require.NoError(t, err)
	c, err := ComputeCID([]byte("%PDF-1.3 other"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "bafkrei"), a)

	assert.NoError(t, VerifyContent(a, []byte("%PDF-1.3 certificate")))
	assert.ErrorIs(t, VerifyContent(a, []byte("%PDF-1.3 other")), ErrContentMismatch)

	// CIDv0 and non-CID hashes cannot be checked from the bytes alone
	assert.NoError(t, VerifyContent("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", []byte("anything")))
	assert.NoError(t, VerifyContent("not-a-cid", []byte("anything")))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(discardLogger())

	hash, err := store.Store(ctx, []byte("document"), "certificate.pdf")
	require.NoError(t, err)

	data, err := store.Fetch(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("document"), data)

	_, err = store.Fetch(ctx, "QmMissing")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	store.SetAvailable(false)
	assert.False(t, store.Available(ctx))
	_, err = store.Store(ctx, []byte("document 2"), "certificate.pdf")
	assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)
	_, err = store.Fetch(ctx, hash)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	store.SetAvailable(true)
	assert.True(t, store.Available(ctx))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "certificates")

	store, err := NewFileStore(dir, discardLogger())
	require.NoError(t, err)
	assert.True(t, store.Available(ctx))
	assert.Equal(t, "file://"+dir, store.LocationURI())

	hash, err := store.Store(ctx, []byte("%PDF-1.3 doc"), "certificate_Jane_CS_1.pdf")
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, hash))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3 doc"), onDisk)

	data, err := store.Fetch(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3 doc"), data)

	_, err = store.Fetch(ctx, "bafkreimissing")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = store.Fetch(ctx, "../escape")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, os.RemoveAll(dir))
	assert.False(t, store.Available(ctx))
}

// pinataServer emulates the pinning API and the gateway.
func pinataServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	pinned := make(map[string][]byte)

	mux := http.NewServeMux()
	mux.HandleFunc("/pinning/pinFileToIPFS", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var metadata map[string]string
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("pinataMetadata")), &metadata))
		assert.Equal(t, header.Filename, metadata["name"])
		assert.JSONEq(t, `{"cidVersion":0}`, r.FormValue("pinataOptions"))

		hash := "QmPinned" + header.Filename
		pinned[hash] = data
		json.NewEncoder(w).Encode(map[string]any{"IpfsHash": hash, "PinSize": len(data), "Timestamp": time.Now().Format(time.RFC3339)})
	})
	mux.HandleFunc("/data/testAuthentication", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("pinata_api_key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"message":"Congratulations! You are communicating with the Pinata API!"}`))
	})
	mux.HandleFunc("/ipfs/", func(w http.ResponseWriter, r *http.Request) {
		data, ok := pinned[strings.TrimPrefix(r.URL.Path, "/ipfs/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestPinataStore(t *testing.T, srv *httptest.Server, apiKey string) *PinataStore {
	store, err := NewPinataStore(PinataOptions{
		APIKey:       apiKey,
		SecretKey:    "secret",
		APIURL:       srv.URL,
		GatewayURL:   srv.URL + "/ipfs",
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, discardLogger())
	require.NoError(t, err)
	return store
}

func TestPinataStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		srv, _ := pinataServer(t, 0)
		store := newTestPinataStore(t, srv, "key")

		assert.True(t, store.Available(ctx))

		hash, err := store.Store(ctx, []byte("%PDF-1.3 doc"), "certificate_Jane_CS_1.pdf")
		require.NoError(t, err)
		assert.Equal(t, "QmPinnedcertificate_Jane_CS_1.pdf", hash)
		assert.Equal(t, srv.URL+"/ipfs/"+hash, store.GatewayURL(hash))

		data, err := store.Fetch(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF-1.3 doc"), data)

		_, err = store.Fetch(ctx, "QmMissing")
		assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		srv, calls := pinataServer(t, 2)
		store := newTestPinataStore(t, srv, "key")

		_, err := store.Store(ctx, []byte("%PDF-1.3 doc"), "retry.pdf")
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("persistent failure is retryable", func(t *testing.T) {
		srv, _ := pinataServer(t, 100)
		store := newTestPinataStore(t, srv, "key")

		_, err := store.Store(ctx, []byte("%PDF-1.3 doc"), "down.pdf")
		assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		srv, _ := pinataServer(t, 0)
		store := newTestPinataStore(t, srv, "wrong")

		assert.False(t, store.Available(ctx))
		_, err := store.Store(ctx, []byte("%PDF-1.3 doc"), "denied.pdf")
		assert.Error(t, err)
		assert.False(t, interfaces.IsRetryable(err))
	})

	t.Run("missing keys", func(t *testing.T) {
		_, err := NewPinataStore(PinataOptions{APIKey: "key"}, discardLogger())
		assert.Error(t, err)
	})
}

func TestStoreFactory(t *testing.T) {
	factory := NewStoreFactory(discardLogger())
	factory.SetPinataCredentials("key", "secret")
	dir := t.TempDir()

	tests := []struct {
		uri      string
		wantType any
	}{
		{"memory://", &MemoryStore{}},
		{"file://" + dir, &FileStore{}},
		{"ipfs://localhost:5001/?timeout=5s", &IPFSStore{}},
		{"s3://AKIA:SECRET@certificates/issued/?region=eu-west-1", &S3Store{}},
		{"pinata://api.pinata.cloud/", &PinataStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			loc, err := interfaces.NewStorageBackendLocation(tt.uri)
			require.NoError(t, err)

			store, err := factory.StoreFor(loc)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, store)
		})
	}

	_, err := interfaces.NewStorageBackendLocation("github://owner/repo")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	loc, err := interfaces.NewStorageBackendLocation("ipfs://localhost:5001/?timeout=soon")
	require.NoError(t, err)
	_, err = factory.StoreFor(loc)
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	t.Run("multi store", func(t *testing.T) {
		mem, err := interfaces.NewStorageBackendLocation("memory://")
		require.NoError(t, err)
		file, err := interfaces.NewStorageBackendLocation("file://" + dir)
		require.NoError(t, err)

		single, err := factory.CreateMultiStore([]interfaces.StorageBackendLocation{mem})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, single)

		multi, err := factory.CreateMultiStore([]interfaces.StorageBackendLocation{mem, file})
		require.NoError(t, err)
		assert.IsType(t, &MultiStore{}, multi)

		hash, err := multi.Store(context.Background(), []byte("replicated"), "r.pdf")
		require.NoError(t, err)
		onDisk, err := os.ReadFile(filepath.Join(dir, hash))
		require.NoError(t, err)
		assert.Equal(t, []byte("replicated"), onDisk)

		_, err = factory.CreateMultiStore(nil)
		assert.Error(t, err)
	})
}
