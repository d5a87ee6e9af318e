package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures a SQLStore.
type Options struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// Path is the SQLite database file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
	// PrincipalID is the session principal; empty means no session.
	PrincipalID string
	Logger      *zap.Logger
}

// SQLStore implements Store on top of database/sql.
type SQLStore struct {
	db        *sql.DB
	dialect   dialect
	principal *Principal
	logger    *zap.Logger
}

type dialect struct {
	name     string
	driver   string
	blobType string
	numbered bool // $1, $2 placeholders
}

var (
	dialectSQLite   = dialect{name: "sqlite", driver: sqliteDriver, blobType: "BLOB"}
	dialectPostgres = dialect{name: "postgres", driver: postgresDriver, blobType: "BYTEA", numbered: true}
)

// rebind rewrites ? placeholders into the dialect's form.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// caseColumns is the column order used by every SELECT on the cases table.
var caseColumns = []string{
	ColID, ColUserID, ColPatientName, ColPatientID, ColModality, ColBodyPart,
	ColFileName, ColStatus, ColPriority, ColSeverityRating, ColConfidenceScore,
	ColFindings, ColSource, ColAssignedTo, ColRadiologistNotes, ColComment,
	ColImageData, ColArchived, ColCreatedAt, ColUpdatedAt, ColProcessedAt,
}

var (
	intColumns  = map[string]bool{ColSeverityRating: true, ColConfidenceScore: true, ColArchived: true}
	timeColumns = map[string]bool{ColCreatedAt: true, ColUpdatedAt: true, ColProcessedAt: true}
)

// IsCaseColumn reports whether name is a column of the cases table.
func IsCaseColumn(name string) bool {
	for _, c := range caseColumns {
		if c == name {
			return true
		}
	}
	return false
}

// NewStore opens the database described by opts and applies migrations.
func NewStore(opts Options) (*SQLStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		d   dialect
		dsn string
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "sqlite", "sqlite3":
		d = dialectSQLite
		// Ensure target directory exists (e.g., ./data)
		if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
		dsn = sqliteDSN(opts.Path)
	case "postgres", "postgresql":
		d = dialectPostgres
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.name == dialectSQLite.name {
		// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	s := newSQLStore(db, d, opts.PrincipalID, logger)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.SetupAuditTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up audit tables: %w", err)
	}

	logger.Info("store ready", zap.String("driver", d.name))
	return s, nil
}

func newSQLStore(db *sql.DB, d dialect, principalID string, logger *zap.Logger) *SQLStore {
	s := &SQLStore{db: db, dialect: d, logger: logger}
	s.SetPrincipal(principalID)
	return s
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SetPrincipal sets the session principal. An empty id clears the session.
func (s *SQLStore) SetPrincipal(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		s.principal = nil
		return
	}
	s.principal = &Principal{ID: id}
}

// migrate performs database migrations
func (s *SQLStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			patient_name TEXT,
			patient_id TEXT,
			modality TEXT,
			body_part TEXT,
			file_name TEXT,
			status TEXT NOT NULL DEFAULT 'open',
			priority TEXT,
			severity_rating INTEGER,
			confidence_score INTEGER,
			findings TEXT,
			source TEXT,
			assigned_to TEXT,
			radiologist_notes TEXT,
			comment TEXT,
			image_data TEXT,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			processed_at BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS blobs (
			bucket TEXT NOT NULL,
			path TEXT NOT NULL,
			data ` + s.dialect.blobType + ` NOT NULL,
			size INTEGER NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (bucket, path)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cases_user_id ON cases(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_created_at ON cases(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_archived ON cases(archived)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// Query returns case rows matching q.
func (s *SQLStore) Query(ctx context.Context, q Query) ([]Row, error) {
	if q.Table != TableCases {
		return nil, storeErr("query", q.Table, ErrUnsupportedTable)
	}

	base := "SELECT " + strings.Join(caseColumns, ", ") + " FROM cases WHERE 1=1"
	args := []interface{}{}

	switch {
	case q.OwnerID != "" && q.IncludeUnowned:
		base += " AND (user_id = ? OR user_id IS NULL)"
		args = append(args, q.OwnerID)
	case q.OwnerID != "":
		base += " AND user_id = ?"
		args = append(args, q.OwnerID)
	case q.IncludeUnowned:
		base += " AND user_id IS NULL"
	}
	if !q.IncludeArchived {
		base += " AND archived = 0"
	}

	orderBy := ColCreatedAt
	if q.OrderBy != "" {
		if !IsCaseColumn(q.OrderBy) {
			return nil, storeErr("query", q.Table, fmt.Errorf("invalid order column %q", q.OrderBy))
		}
		orderBy = q.OrderBy
	}
	base += " ORDER BY " + orderBy
	if q.Descending {
		base += " DESC"
	}
	if q.Limit > 0 {
		base += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(base), args...)
	if err != nil {
		return nil, storeErr("query", q.Table, fmt.Errorf("failed to query cases: %w", err))
	}
	defer rows.Close()

	out, err := scanCaseRows(rows)
	if err != nil {
		return nil, storeErr("query", q.Table, err)
	}
	return out, nil
}

// Insert stores a case row. A missing id is assigned, timestamps default to now.
func (s *SQLStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if table != TableCases {
		return nil, storeErr("insert", table, ErrUnsupportedTable)
	}

	now := time.Now()
	values := make(map[string]interface{}, len(row)+3)
	for k, v := range row {
		if !IsCaseColumn(k) {
			continue
		}
		if cv := columnValue(k, v); cv != nil {
			values[k] = cv
		}
	}

	id := AsString(row[ColID])
	if id == "" {
		id = uuid.NewString()
	}
	values[ColID] = id
	if ts, ok := values[ColCreatedAt].(int64); !ok || ts == 0 {
		values[ColCreatedAt] = now.Unix()
	}
	values[ColUpdatedAt] = now.Unix()
	if _, ok := values[ColStatus]; !ok {
		values[ColStatus] = "open"
	}
	if _, ok := values[ColArchived]; !ok {
		values[ColArchived] = int64(0)
	}

	cols := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values))
	for _, c := range caseColumns {
		if v, ok := values[c]; ok {
			cols = append(cols, c)
			args = append(args, v)
		}
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	query := "INSERT INTO cases (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"

	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...); err != nil {
		return nil, storeErr("insert", table, fmt.Errorf("failed to save case: %w", err))
	}

	stored, err := s.getCase(ctx, id)
	if err != nil {
		return nil, storeErr("insert", table, err)
	}
	return stored, nil
}

// Update applies patch to the case identified by id and bumps updated_at.
func (s *SQLStore) Update(ctx context.Context, table, id string, patch Row) error {
	if table != TableCases {
		return storeErr("update", table, ErrUnsupportedTable)
	}

	sets := []string{}
	args := []interface{}{}
	for _, c := range caseColumns {
		if c == ColID || c == ColUpdatedAt || c == ColCreatedAt {
			continue
		}
		v, ok := patch[c]
		if !ok {
			continue
		}
		sets = append(sets, c+" = ?")
		args = append(args, columnValue(c, v))
	}
	sets = append(sets, ColUpdatedAt+" = ?")
	args = append(args, time.Now().Unix(), id)

	query := "UPDATE cases SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return storeErr("update", table, fmt.Errorf("failed to update case %s: %w", id, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storeErr("update", table, fmt.Errorf("case %s: %w", id, ErrNotFound))
	}
	return nil
}

// Delete removes the case identified by id.
func (s *SQLStore) Delete(ctx context.Context, table, id string) error {
	if table != TableCases {
		return storeErr("delete", table, ErrUnsupportedTable)
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM cases WHERE id = ?`), id)
	if err != nil {
		return storeErr("delete", table, fmt.Errorf("failed to delete case %s: %w", id, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storeErr("delete", table, fmt.Errorf("case %s: %w", id, ErrNotFound))
	}
	return nil
}

// UploadBlob stores data under bucket/path, replacing any previous blob there.
func (s *SQLStore) UploadBlob(ctx context.Context, bucket, path string, data []byte) (string, error) {
	bucket = strings.Trim(bucket, "/ ")
	path = strings.Trim(path, "/ ")
	if bucket == "" || path == "" {
		return "", storeErr("upload", bucket, errors.New("bucket and path are required"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storeErr("upload", bucket, fmt.Errorf("begin tx: %w", err))
	}
	rollback := func(e error) (string, error) {
		_ = tx.Rollback()
		return "", storeErr("upload", bucket, e)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM blobs WHERE bucket = ? AND path = ?`), bucket, path); err != nil {
		return rollback(fmt.Errorf("replace blob %s/%s: %w", bucket, path, err))
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO blobs (bucket, path, data, size, created_at) VALUES (?, ?, ?, ?, ?)`),
		bucket, path, data, len(data), time.Now().Unix()); err != nil {
		return rollback(fmt.Errorf("insert blob %s/%s: %w", bucket, path, err))
	}
	if err := tx.Commit(); err != nil {
		return "", storeErr("upload", bucket, fmt.Errorf("commit tx: %w", err))
	}
	return bucket + "/" + path, nil
}

// GetBlob returns the blob stored under bucket/path.
func (s *SQLStore) GetBlob(ctx context.Context, bucket, path string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT data FROM blobs WHERE bucket = ? AND path = ?`), bucket, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get blob", bucket, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound))
	}
	if err != nil {
		return nil, storeErr("get blob", bucket, err)
	}
	return data, nil
}

// CurrentPrincipal returns the configured session principal, or nil without a session.
func (s *SQLStore) CurrentPrincipal(ctx context.Context) (*Principal, error) {
	if s.principal == nil {
		return nil, nil
	}
	p := *s.principal
	return &p, nil
}

func (s *SQLStore) getCase(ctx context.Context, id string) (Row, error) {
	query := "SELECT " + strings.Join(caseColumns, ", ") + " FROM cases WHERE id = ?"
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query case %s: %w", id, err)
	}
	defer rows.Close()

	out, err := scanCaseRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	return out[0], nil
}

// columnValue converts a loosely typed row value into the column's storage form.
func columnValue(col string, v any) interface{} {
	if v == nil {
		return nil
	}
	switch {
	case timeColumns[col]:
		ts := AsTime(v)
		if ts.IsZero() {
			return nil
		}
		return ts.Unix()
	case col == ColArchived:
		if AsBool(v) {
			return int64(1)
		}
		return int64(0)
	case intColumns[col]:
		if n, ok := AsInt(v); ok {
			return int64(n)
		}
		return nil
	case col == ColUserID:
		if s := AsString(v); s != "" {
			return s
		}
		return nil
	default:
		return AsString(v)
	}
}

// scanCaseRows scans rows selected with caseColumns. NULL columns are left out of the row.
func scanCaseRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var (
			strs                         [15]sql.NullString
			sev, conf, archived          sql.NullInt64
			createdAt, updatedAt, procAt sql.NullInt64
		)
		err := rows.Scan(
			&strs[0], &strs[1], &strs[2], &strs[3], &strs[4], &strs[5],
			&strs[6], &strs[7], &strs[8], &sev, &conf,
			&strs[9], &strs[10], &strs[11], &strs[12], &strs[13],
			&strs[14], &archived, &createdAt, &updatedAt, &procAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}

		row := Row{}
		strCols := []string{
			ColID, ColUserID, ColPatientName, ColPatientID, ColModality, ColBodyPart,
			ColFileName, ColStatus, ColPriority, ColFindings, ColSource, ColAssignedTo,
			ColRadiologistNotes, ColComment, ColImageData,
		}
		for i, c := range strCols {
			if strs[i].Valid {
				row[c] = strs[i].String
			}
		}
		if sev.Valid {
			row[ColSeverityRating] = sev.Int64
		}
		if conf.Valid {
			row[ColConfidenceScore] = conf.Int64
		}
		row[ColArchived] = archived.Valid && archived.Int64 != 0
		if createdAt.Valid {
			row[ColCreatedAt] = time.Unix(createdAt.Int64, 0)
		}
		if updatedAt.Valid {
			row[ColUpdatedAt] = time.Unix(updatedAt.Int64, 0)
		}
		if procAt.Valid {
			row[ColProcessedAt] = time.Unix(procAt.Int64, 0)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case rows: %w", err)
	}
	return out, nil
}
