// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package lakestore manages the snapshot-versioned event table that the
// harness reads from and writes to. Storage is a DuckLake catalog: a DuckDB
// instance with the ducklake extension attached to a SQLite metastore, with
// table data written as parquet files under a local data directory. Every
// committed INSERT produces a new snapshot, which is what the trigger loop
// uses as its offset watermark.
package lakestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	duckdb "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotOpen is returned when a Store method is called before Open.
var ErrNotOpen = errors.New("lakestore: store is not open")

const (
	catalogName = "lake"
	schemaName  = "main"

	metastoreFile = "metadata.sqlite"
	scratchFile   = "scratch.ddb"
	dataDirName   = "data"
)

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Row is one event row in the lake table.
type Row struct {
	ID        int64
	Timestamp time.Time
	CommitTag string
}

// Snapshot describes one commit recorded in the metastore.
type Snapshot struct {
	ID      int64
	Time    time.Time
	Changes string
}

// Store owns a DuckLake-attached DuckDB session plus a read-only handle on
// the SQLite metastore. All engine statements run on a single pinned
// connection: LOAD, ATTACH, and USE are session state, and a single writer
// keeps snapshot IDs strictly ordered with respect to AppendBatch calls.
type Store struct {
	rootPath       string
	tableName      string
	memoryLimitMB  int64
	threads        int
	cleanupOnClose bool

	db   *sql.DB
	conn *sql.Conn
	meta *sql.DB

	mu sync.Mutex // serializes statements on the pinned connection
}

type storeConfig struct {
	rootPath      string
	tableName     string
	memoryLimitMB int64
	threads       int
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*storeConfig)

// WithRootPath sets the directory holding the metastore, the data files,
// and the engine scratch database. If unset, a temporary directory is
// created and removed on Close.
func WithRootPath(path string) StoreOption {
	return func(cfg *storeConfig) {
		if path == "" {
			panic("WithRootPath: path must not be empty")
		}
		cfg.rootPath = path
	}
}

// WithTableName sets the event table name. Defaults to "events".
func WithTableName(name string) StoreOption {
	return func(cfg *storeConfig) {
		cfg.tableName = name
	}
}

// WithMemoryLimitMB caps engine memory (0 = unlimited).
func WithMemoryLimitMB(mb int64) StoreOption {
	return func(cfg *storeConfig) {
		cfg.memoryLimitMB = mb
	}
}

// WithThreads sets the engine thread count (0 = GOMAXPROCS).
func WithThreads(n int) StoreOption {
	return func(cfg *storeConfig) {
		cfg.threads = n
	}
}

// NewStore validates options and returns an unopened Store.
func NewStore(opts ...StoreOption) (*Store, error) {
	cfg := &storeConfig{
		tableName: "events",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !tableNameRE.MatchString(cfg.tableName) {
		return nil, fmt.Errorf("invalid table name %q", cfg.tableName)
	}

	threads := cfg.threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	return &Store{
		rootPath:      cfg.rootPath,
		tableName:     cfg.tableName,
		memoryLimitMB: cfg.memoryLimitMB,
		threads:       threads,
	}, nil
}

// Open attaches the lake and ensures the event table exists. It must be
// called once before any other method.
func (s *Store) Open(ctx context.Context) error {
	if s.conn != nil {
		return errors.New("lakestore: store already open")
	}

	if s.rootPath == "" {
		dir, err := os.MkdirTemp("", "lakestore")
		if err != nil {
			return fmt.Errorf("create temp dir for store: %w", err)
		}
		s.rootPath = dir
		s.cleanupOnClose = true
	}

	dataPath := filepath.Join(s.rootPath, dataDirName) + string(os.PathSeparator)
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	metaPath := filepath.Join(s.rootPath, metastoreFile)
	dbPath := filepath.Join(s.rootPath, scratchFile)

	dsn := buildDSN(dbPath, s.memoryLimitMB, s.threads)
	connector, err := duckdb.NewConnector(dsn, nil)
	if err != nil {
		return fmt.Errorf("create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	// One connection only: the attachment and search path live on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("pin connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET home_directory='%s';", escapeSingle(s.rootPath))); err != nil {
		slog.Warn("Failed to set home_directory", slog.Any("error", err))
	}

	for _, stmt := range []string{
		"INSTALL ducklake", "LOAD ducklake",
		"INSTALL sqlite", "LOAD sqlite",
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			_ = db.Close()
			return fmt.Errorf("%s: %w", strings.ToLower(stmt), err)
		}
	}

	attachSQL := fmt.Sprintf(
		`ATTACH IF NOT EXISTS 'ducklake:sqlite:%s' AS %s (DATA_PATH '%s')`,
		escapeSingle(metaPath), catalogName, escapeSingle(dataPath),
	)
	if _, err := conn.ExecContext(ctx, attachSQL); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return fmt.Errorf("attach ducklake: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "USE "+catalogName); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return fmt.Errorf("use %s: %w", catalogName, err)
	}

	createSQL := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id BIGINT NOT NULL, ts TIMESTAMP NOT NULL, commit_tag VARCHAR NOT NULL)`,
		s.qualifiedTable(),
	)
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return fmt.Errorf("create table %s: %w", s.tableName, err)
	}

	// The metastore file exists once the attach succeeds. Keep our handle
	// read-only; the engine is the only writer.
	meta, err := sql.Open("sqlite3", "file:"+metaPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return fmt.Errorf("open metastore: %w", err)
	}

	s.db = db
	s.conn = conn
	s.meta = meta

	slog.Info("lakestore: attached",
		slog.String("rootPath", s.rootPath),
		slog.String("table", s.tableName),
		slog.Int("threads", s.threads),
	)
	return nil
}

// Close releases the pinned connection, the engine, and the metastore
// handle. A temp-dir store removes its directory.
func (s *Store) Close() error {
	var errs *multierror.Error
	if s.conn != nil {
		errs = multierror.Append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.db != nil {
		errs = multierror.Append(errs, s.db.Close())
		s.db = nil
	}
	if s.meta != nil {
		errs = multierror.Append(errs, s.meta.Close())
		s.meta = nil
	}
	if s.cleanupOnClose && s.rootPath != "" {
		errs = multierror.Append(errs, os.RemoveAll(s.rootPath))
	}
	return errs.ErrorOrNil()
}

// RootPath returns the directory holding the lake.
func (s *Store) RootPath() string { return s.rootPath }

// TableName returns the event table name.
func (s *Store) TableName() string { return s.tableName }

// AppendBatch inserts the rows as a single statement, which DuckLake commits
// as one snapshot. It returns the snapshot ID of the commit. An empty batch
// makes no commit and returns the current snapshot.
func (s *Store) AppendBatch(ctx context.Context, rows []Row) (int64, error) {
	if s.conn == nil {
		return 0, ErrNotOpen
	}
	if len(rows) == 0 {
		return s.CurrentSnapshot(ctx)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (id, ts, commit_tag) VALUES ", s.qualifiedTable())
	args := make([]any, 0, len(rows)*3)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, row.ID, row.Timestamp.UTC(), row.CommitTag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.ExecContext(ctx, sb.String(), args...); err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	return s.latestSnapshotLocked(ctx)
}

// CurrentSnapshot returns the highest committed snapshot ID, or 0 if the
// lake has none yet.
func (s *Store) CurrentSnapshot(ctx context.Context) (int64, error) {
	if s.conn == nil {
		return 0, ErrNotOpen
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestSnapshotLocked(ctx)
}

func (s *Store) latestSnapshotLocked(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	row := s.conn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT max(snapshot_id) FROM ducklake_snapshots('%s')", catalogName))
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("query snapshots: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

// ChangesBetween returns the rows inserted by snapshots in [start, end],
// ordered by row ID. Schema-only snapshots contribute nothing.
func (s *Store) ChangesBetween(ctx context.Context, start, end int64) ([]Row, error) {
	if start > end {
		return nil, nil
	}
	if s.conn == nil {
		return nil, ErrNotOpen
	}

	query := fmt.Sprintf(
		`SELECT id, ts, commit_tag
		 FROM ducklake_table_changes('%s', '%s', '%s', %d, %d)
		 WHERE change_type = 'insert'
		 ORDER BY id`,
		catalogName, schemaName, s.tableName, start, end,
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query table changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.CommitTag); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MaxRowID returns the highest row ID in the table, or 0 when empty.
func (s *Store) MaxRowID(ctx context.Context) (int64, error) {
	if s.conn == nil {
		return 0, ErrNotOpen
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var id sql.NullInt64
	row := s.conn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT max(id) FROM %s", s.qualifiedTable()))
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("query max row id: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

// TotalRows returns the number of rows currently visible in the table.
func (s *Store) TotalRows(ctx context.Context) (int64, error) {
	if s.conn == nil {
		return 0, ErrNotOpen
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	row := s.conn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s", s.qualifiedTable()))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("query row count: %w", err)
	}
	return n, nil
}

// Snapshots lists every snapshot in the metastore in commit order, with the
// change summary DuckLake recorded for it. Reads go straight to the SQLite
// catalog tables rather than through the engine.
func (s *Store) Snapshots(ctx context.Context) ([]Snapshot, error) {
	if s.meta == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.meta.QueryContext(ctx,
		`SELECT s.snapshot_id, s.snapshot_time, coalesce(c.changes_made, '')
		 FROM ducklake_snapshot s
		 LEFT JOIN ducklake_snapshot_changes c ON c.snapshot_id = s.snapshot_id
		 ORDER BY s.snapshot_id`)
	if err != nil {
		return nil, fmt.Errorf("query ducklake_snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		var (
			snap    Snapshot
			rawTime string
		)
		if err := rows.Scan(&snap.ID, &rawTime, &snap.Changes); err != nil {
			return nil, err
		}
		snap.Time = parseSnapshotTime(rawTime)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LiveDataFileCount returns the number of parquet data files currently
// backing the table: files whose end_snapshot is unset in the metastore.
// This is the table's effective scan parallelism.
func (s *Store) LiveDataFileCount(ctx context.Context) (int, error) {
	if s.meta == nil {
		return 0, ErrNotOpen
	}

	var tableID int64
	row := s.meta.QueryRowContext(ctx,
		`SELECT table_id FROM ducklake_table
		 WHERE table_name = ? AND end_snapshot IS NULL`, s.tableName)
	if err := row.Scan(&tableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("table %q not found in catalog", s.tableName)
		}
		return 0, err
	}

	var n int
	row = s.meta.QueryRowContext(ctx,
		`SELECT count(*) FROM ducklake_data_file
		 WHERE table_id = ? AND end_snapshot IS NULL`, tableID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) qualifiedTable() string {
	return catalogName + "." + schemaName + "." + s.tableName
}

// buildDSN constructs a DuckDB DSN with the provided settings.
// See https://duckdb.org/docs/api/go.html for supported parameters.
func buildDSN(dbPath string, memoryLimitMB int64, threads int) string {
	params := []string{"allow_unsigned_extensions=true"}

	if memoryLimitMB > 0 {
		params = append(params, fmt.Sprintf("memory_limit=%dMB", memoryLimitMB))
	}
	params = append(params, fmt.Sprintf("threads=%d", threads))

	return dbPath + "?" + strings.Join(params, "&")
}

func escapeSingle(s string) string {
	var result []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			result = append(result, '\'', '\'')
		} else {
			result = append(result, s[i])
		}
	}
	return string(result)
}

var snapshotTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999+00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

// parseSnapshotTime handles the text timestamp formats the metastore uses.
// An unparseable value yields the zero time rather than an error; snapshot
// listings are diagnostic output, not correctness-critical.
func parseSnapshotTime(raw string) time.Time {
	for _, layout := range snapshotTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
