package sink

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/utils"
)

// fileMu serializes the size check and write so two first appends cannot both emit a header.
var fileMu sync.Mutex

// FileBackend appends CSV rows to a local file.
type FileBackend struct {
	path string
}

// NewFileBackend targets path; parent directories are created on first append.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Name() string { return config.SinkFile }

// Append writes one row, preceded by the header when the file is absent or empty.
func (b *FileBackend) Append(ctx context.Context, rec models.NotificationRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if dir := filepath.Dir(b.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", utils.NewAppError("sink.file", "create directory", err)
		}
	}

	fileMu.Lock()
	defer fileMu.Unlock()

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return "", utils.NewAppError("sink.file", "open log file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", utils.NewAppError("sink.file", "stat log file", err)
	}

	rows := [][]string{Row(rec)}
	if info.Size() == 0 {
		rows = [][]string{Headers, Row(rec)}
	}
	data, err := encodeCSV(rows...)
	if err != nil {
		return "", utils.NewAppError("sink.file", "encode row", err)
	}
	if _, err := f.Write(data); err != nil {
		return "", utils.NewAppError("sink.file", "write row", err)
	}
	return b.path, nil
}
