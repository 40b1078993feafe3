package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
)

// fakeBlobService speaks the subset of the Blob REST API used by azblobStore.
type fakeBlobService struct {
	mu           sync.Mutex
	objects      map[string][]byte
	downloadCode int
	downloadErr  string
	uploads      int
}

func (f *fakeBlobService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		if f.downloadCode != 0 {
			w.Header().Set("x-ms-error-code", f.downloadErr)
			w.WriteHeader(f.downloadCode)
			return
		}
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("x-ms-blob-type", "BlockBlob")
		_, _ = w.Write(data)
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.uploads++
		f.objects[r.URL.Path] = data
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeBlobService) object(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path]
}

func (f *fakeBlobService) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func newAzblobBackend(t *testing.T, svc *fakeBlobService) *BlobBackend {
	t.Helper()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	store, err := newAzblobStore(config.BlobSinkConfig{AccountURL: srv.URL + "/acct"})
	require.NoError(t, err)
	return NewBlobBackend(store, "logs", "a.csv")
}

func TestAzblobStoreNotFoundStartsNewObject(t *testing.T) {
	svc := &fakeBlobService{objects: map[string][]byte{}}
	backend := newAzblobBackend(t, svc)

	loc, err := backend.Append(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, "logs/a.csv", loc)
	require.Equal(t, 1, svc.uploadCount())

	rows := readCSV(t, svc.object("/acct/logs/a.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "Pipe", rows[1][1])
}

func TestAzblobStoreAppendsToExistingObject(t *testing.T) {
	svc := &fakeBlobService{objects: map[string][]byte{}}
	backend := newAzblobBackend(t, svc)

	for i := 0; i < 2; i++ {
		_, err := backend.Append(context.Background(), sampleRecord())
		require.NoError(t, err)
	}

	rows := readCSV(t, svc.object("/acct/logs/a.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "run-1", rows[2][2])
}

func TestAzblobStoreDownloadErrorSkipsUpload(t *testing.T) {
	// 403 is not retried by the SDK pipeline, so the failure surfaces at once.
	svc := &fakeBlobService{
		objects:      map[string][]byte{"/acct/logs/a.csv": []byte("timestamp\nx\n")},
		downloadCode: http.StatusForbidden,
		downloadErr:  "AuthorizationFailure",
	}
	backend := newAzblobBackend(t, svc)

	_, err := backend.Append(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download a.csv")
	assert.Zero(t, svc.uploadCount())
	assert.Equal(t, "timestamp\nx\n", string(svc.object("/acct/logs/a.csv")))
}
