package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/utils"
)

// blobStore is the slice of blob storage the backend needs.
// Download returns nil content and no error when the object does not exist.
type blobStore interface {
	Download(ctx context.Context, container, blob string) ([]byte, error)
	Upload(ctx context.Context, container, blob string, data []byte) error
}

// BlobBackend keeps the analysis log as one CSV object, rewritten on every append.
//
// The download, append, upload cycle is not atomic. Concurrent appends can
// overwrite each other's rows; callers accept that loss.
type BlobBackend struct {
	store     blobStore
	container string
	blob      string
}

// NewBlobBackend targets container/blob in store.
func NewBlobBackend(store blobStore, container, blob string) *BlobBackend {
	if blob == "" {
		blob = "analysis_log.csv"
	}
	return &BlobBackend{store: store, container: container, blob: blob}
}

func (b *BlobBackend) Name() string { return config.SinkBlob }

// Append downloads the current object, adds one row and uploads the result.
func (b *BlobBackend) Append(ctx context.Context, rec models.NotificationRecord) (string, error) {
	if b.container == "" {
		return "", utils.NewAppError("sink.blob", "container name is not configured", nil)
	}
	existing, err := b.store.Download(ctx, b.container, b.blob)
	if err != nil {
		return "", utils.NewAppError("sink.blob", "download "+b.blob, err)
	}

	rows := [][]string{Row(rec)}
	if len(existing) == 0 {
		rows = [][]string{Headers, Row(rec)}
	}
	appended, err := encodeCSV(rows...)
	if err != nil {
		return "", utils.NewAppError("sink.blob", "encode row", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(existing) + len(appended) + 2)
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteString("\r\n")
	}
	buf.Write(appended)

	if err := b.store.Upload(ctx, b.container, b.blob, buf.Bytes()); err != nil {
		return "", utils.NewAppError("sink.blob", "upload "+b.blob, err)
	}
	return b.container + "/" + b.blob, nil
}

type azblobStore struct {
	client *azblob.Client
}

// newAzblobStore picks the client constructor from the credential shape:
// a connection string, a SAS token, an account key, or nothing (anonymous).
func newAzblobStore(cfg config.BlobSinkConfig) (*azblobStore, error) {
	cred := strings.TrimSpace(cfg.Credential)

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case strings.Contains(cred, "AccountKey=") || strings.Contains(cred, "SharedAccessSignature=") || strings.Contains(cred, "BlobEndpoint="):
		client, err = azblob.NewClientFromConnectionString(cred, nil)
	case cfg.AccountURL == "":
		return nil, fmt.Errorf("blob account URL is not configured")
	case cred == "":
		client, err = azblob.NewClientWithNoCredential(cfg.AccountURL, nil)
	case strings.HasPrefix(cred, "?") || strings.Contains(cred, "sig="):
		client, err = azblob.NewClientWithNoCredential(withSAS(cfg.AccountURL, cred), nil)
	default:
		account, nameErr := accountName(cfg.AccountURL)
		if nameErr != nil {
			return nil, nameErr
		}
		sharedKey, keyErr := azblob.NewSharedKeyCredential(account, cred)
		if keyErr != nil {
			return nil, fmt.Errorf("shared key credential: %w", keyErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, sharedKey, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &azblobStore{client: client}, nil
}

func (s *azblobStore) Download(ctx context.Context, container, blob string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *azblobStore) Upload(ctx context.Context, container, blob string, data []byte) error {
	_, err := s.client.UploadBuffer(ctx, container, blob, data, nil)
	return err
}

func withSAS(accountURL, sas string) string {
	sas = strings.TrimPrefix(sas, "?")
	if strings.Contains(accountURL, "?") {
		return accountURL + "&" + sas
	}
	return accountURL + "?" + sas
}

func accountName(accountURL string) (string, error) {
	u, err := url.Parse(accountURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid blob account URL %q", accountURL)
	}
	name, _, _ := strings.Cut(u.Hostname(), ".")
	return name, nil
}
