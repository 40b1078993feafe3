package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/utils"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLBackend inserts analysis rows into a table, creating it when missing.
// Supported drivers are "sqlite" and "sqlserver". A connection is opened per
// append so no pool outlives the configuration snapshot that named it.
type SQLBackend struct {
	driver string
	dsn    string
	table  string
	open   func(driver, dsn string) (*sql.DB, error)
}

// NewSQLBackend targets table in the database at dsn.
func NewSQLBackend(driver, dsn, table string) *SQLBackend {
	if table == "" {
		table = "analysis_log"
	}
	return &SQLBackend{driver: driver, dsn: dsn, table: table, open: sql.Open}
}

func (b *SQLBackend) Name() string { return config.SinkSQL }

// Append inserts one row and returns "<driver>:<table>".
func (b *SQLBackend) Append(ctx context.Context, rec models.NotificationRecord) (string, error) {
	if !identifierPattern.MatchString(b.table) {
		return "", utils.NewAppError("sink.sql", fmt.Sprintf("invalid table name %q", b.table), nil)
	}
	if b.dsn == "" {
		return "", utils.NewAppError("sink.sql", "dsn is not configured", nil)
	}

	db, err := b.open(b.driver, b.dsn)
	if err != nil {
		return "", utils.NewAppError("sink.sql", "open database", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if b.driver == "sqlite" {
		_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	}
	if _, err := db.ExecContext(ctx, b.createTableSQL()); err != nil {
		return "", utils.NewAppError("sink.sql", "create table", err)
	}

	row := Row(rec)
	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v
	}
	if _, err := db.ExecContext(ctx, b.insertSQL(), args...); err != nil {
		return "", utils.NewAppError("sink.sql", "insert row", err)
	}
	return b.driver + ":" + b.table, nil
}

func (b *SQLBackend) createTableSQL() string {
	cols := make([]string, len(Headers))
	for i, h := range Headers {
		if b.driver == "sqlserver" {
			cols[i] = fmt.Sprintf("[%s] NVARCHAR(%d) NULL", h, MaxFieldLength)
		} else {
			cols[i] = fmt.Sprintf("%q TEXT", h)
		}
	}
	if b.driver == "sqlserver" {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE [%s] (id BIGINT IDENTITY(1,1) PRIMARY KEY, %s)",
			b.table, b.table, strings.Join(cols, ", "))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (id INTEGER PRIMARY KEY AUTOINCREMENT, %s)",
		b.table, strings.Join(cols, ", "))
}

func (b *SQLBackend) insertSQL() string {
	cols := make([]string, len(Headers))
	params := make([]string, len(Headers))
	for i, h := range Headers {
		if b.driver == "sqlserver" {
			cols[i] = "[" + h + "]"
			params[i] = fmt.Sprintf("@p%d", i+1)
		} else {
			cols[i] = fmt.Sprintf("%q", h)
			params[i] = "?"
		}
	}
	if b.driver == "sqlserver" {
		return fmt.Sprintf("INSERT INTO [%s] (%s) VALUES (%s)", b.table, strings.Join(cols, ", "), strings.Join(params, ", "))
	}
	return fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", b.table, strings.Join(cols, ", "), strings.Join(params, ", "))
}
