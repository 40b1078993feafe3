package sink

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

func sampleRecord() models.NotificationRecord {
	return models.NotificationRecord{
		PipelineName: "Pipe",
		RunID:        "run-1",
		Environment:  "prod",
		Severity:     "error",
		RawError:     "boom",
		Diagnosis: models.Diagnosis{
			SimplifiedError: "line one\nline two\r\nline three",
			ProbableReason:  strings.Repeat("r", 5000),
			ProbableFix:     "fix",
			Confidence:      0.6,
		},
		ReceivedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRowFlattensAndCaps(t *testing.T) {
	row := Row(sampleRecord())
	require.Len(t, row, len(Headers))
	assert.Equal(t, "2024-05-01T10:00:00.000000", row[0])
	assert.Equal(t, "line one line two line three", row[12])
	assert.Len(t, row[13], MaxFieldLength)
	assert.Equal(t, "0.60", row[15])
}

func TestFileBackendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "analysis_log.csv")
	backend := NewFileBackend(path)

	for i := 0; i < 3; i++ {
		loc, err := backend.Append(context.Background(), sampleRecord())
		require.NoError(t, err)
		assert.Equal(t, path, loc)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows := readCSV(t, data)
	require.Len(t, rows, 4)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "Pipe", rows[3][1])
}

func TestFileBackendHeaderForEmptyExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis_log.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o640))

	_, err := NewFileBackend(path).Append(context.Background(), sampleRecord())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows := readCSV(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, "timestamp", rows[0][0])
}

func TestFileBackendConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis_log.csv")
	backend := NewFileBackend(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = backend.Append(context.Background(), sampleRecord())
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows := readCSV(t, data)
	assert.Len(t, rows, 21)
	headers := 0
	for _, r := range rows {
		if r[0] == "timestamp" {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}

type fakeBlobStore struct {
	content     []byte
	downloadErr error
	uploadErr   error
	uploads     int
}

func (f *fakeBlobStore) Download(context.Context, string, string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.content, nil
}

func (f *fakeBlobStore) Upload(_ context.Context, _, _ string, data []byte) error {
	f.uploads++
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.content = append([]byte(nil), data...)
	return nil
}

func TestBlobBackendAppendsToObject(t *testing.T) {
	store := &fakeBlobStore{}
	backend := NewBlobBackend(store, "logs", "")

	loc, err := backend.Append(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, "logs/analysis_log.csv", loc)

	_, err = backend.Append(context.Background(), sampleRecord())
	require.NoError(t, err)

	rows := readCSV(t, store.content)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
}

func TestBlobBackendRepairsMissingTrailingNewline(t *testing.T) {
	store := &fakeBlobStore{content: []byte("timestamp,pipelineName\nx,y")}
	_, err := NewBlobBackend(store, "logs", "a.csv").Append(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.Contains(t, string(store.content), "x,y\r\n2024-05-01")
}

func TestBlobBackendDownloadFailureDoesNotOverwrite(t *testing.T) {
	store := &fakeBlobStore{downloadErr: errors.New("403")}
	_, err := NewBlobBackend(store, "logs", "a.csv").Append(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Zero(t, store.uploads)
}

func TestSQLBackendWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	backend := NewSQLBackend("sqlserver", "sqlserver://sa:pw@localhost?database=ops", "")
	backend.open = func(string, string) (*sql.DB, error) { return db, nil }

	args := make([]driver.Value, len(Headers))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec(regexp.QuoteMeta("IF OBJECT_ID(N'analysis_log', N'U') IS NULL CREATE TABLE [analysis_log]")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [analysis_log] ([timestamp], [pipelineName]")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	loc, err := backend.Append(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, "sqlserver:analysis_log", loc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	backend := NewSQLBackend("sqlserver", "dsn", "analysis_log")
	backend.open = func(string, string) (*sql.DB, error) { return db, nil }
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("deadlock"))
	mock.ExpectClose()

	_, err = backend.Append(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert row")
}

func TestSQLBackendRejectsBadTable(t *testing.T) {
	_, err := NewSQLBackend("sqlite", "x.db", "logs; DROP TABLE x").Append(context.Background(), sampleRecord())
	require.Error(t, err)
}

func TestSQLBackendSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "analysis.db")
	backend := NewSQLBackend("sqlite", dsn, "analysis_log")

	for i := 0; i < 2; i++ {
		loc, err := backend.Append(context.Background(), sampleRecord())
		require.NoError(t, err)
		assert.Equal(t, "sqlite:analysis_log", loc)
	}

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "analysis_log"`).Scan(&count))
	assert.Equal(t, 2, count)

	var confidence string
	require.NoError(t, db.QueryRow(`SELECT "confidence" FROM "analysis_log" LIMIT 1`).Scan(&confidence))
	assert.Equal(t, "0.60", confidence)
}

type panicBackend struct{}

func (panicBackend) Name() string { return "panic" }

func (panicBackend) Append(context.Context, models.NotificationRecord) (string, error) {
	panic("boom")
}

func TestSinkSwallowsFailures(t *testing.T) {
	failing := New(nil, brokenBackend{name: config.SinkBlob, err: errors.New("no creds")}, time.Second)
	assert.Equal(t, "", failing.Append(context.Background(), sampleRecord()))

	panicking := New(nil, panicBackend{}, 0)
	assert.Equal(t, "", panicking.Append(context.Background(), sampleRecord()))
}

func TestSinkAppliesTimeout(t *testing.T) {
	store := &blockingStore{}
	s := New(nil, NewBlobBackend(store, "logs", "a.csv"), 20*time.Millisecond)

	start := time.Now()
	assert.Equal(t, "", s.Append(context.Background(), sampleRecord()))
	assert.Less(t, time.Since(start), 2*time.Second)
}

type blockingStore struct{}

func (blockingStore) Download(ctx context.Context, _, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) Upload(context.Context, string, string, []byte) error { return nil }

func TestFromConfigSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		cfg  config.LogSinkConfig
		want string
	}{
		{name: "none", cfg: config.LogSinkConfig{}, want: config.SinkNone},
		{name: "file", cfg: config.LogSinkConfig{EnableFile: true, FilePath: filepath.Join(dir, "a.csv")}, want: config.SinkFile},
		{name: "blob without url", cfg: config.LogSinkConfig{EnableBlob: true, EnableFile: true}, want: config.SinkBlob},
		{name: "sql", cfg: config.LogSinkConfig{Backend: "sql", SQL: config.SQLSinkConfig{Driver: "sqlite"}}, want: config.SinkSQL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FromConfig(tc.cfg, nil).Backend())
		})
	}

	none := FromConfig(config.LogSinkConfig{}, nil)
	assert.Equal(t, "", none.Append(context.Background(), sampleRecord()))

	brokenBlob := FromConfig(config.LogSinkConfig{EnableBlob: true}, nil)
	assert.Equal(t, "", brokenBlob.Append(context.Background(), sampleRecord()))
}

func TestAccountNameAndSAS(t *testing.T) {
	name, err := accountName("https://myacct.blob.core.windows.net/")
	require.NoError(t, err)
	assert.Equal(t, "myacct", name)

	assert.Equal(t, "https://a.blob.core.windows.net/?sv=1&sig=x", withSAS("https://a.blob.core.windows.net/", "?sv=1&sig=x"))
}
