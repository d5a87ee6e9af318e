package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one mutation applied to a case.
type AuditEntry struct {
	ID        string                 `json:"id"`
	CaseID    string                 `json:"case_id"`
	Action    string                 `json:"action"` // "status", "priority", "assign", "archive", "delete", "export", "attach_image"
	Actor     string                 `json:"actor"`  // principal id or "system"
	Details   map[string]interface{} `json:"details"`
	Metadata  map[string]string      `json:"metadata,omitempty"` // batch_id, batch_size
	Timestamp time.Time              `json:"timestamp"`
	CreatedAt time.Time              `json:"created_at"`
}

// SetupAuditTables creates the audit table if it doesn't exist
func (s *SQLStore) SetupAuditTables() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			details TEXT NOT NULL,
			metadata TEXT,
			timestamp BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_audit_case_id ON audit_entries(case_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute audit migration: %w", err)
		}
	}
	return nil
}

// AddAuditEntry adds an audit entry to the database
func (s *SQLStore) AddAuditEntry(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.CreatedAt = time.Now()
	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	var metadata interface{}
	if entry.Metadata != nil {
		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = string(metadataJSON)
	}

	query := `INSERT INTO audit_entries (
		id, case_id, action, actor, details, metadata, timestamp, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(query),
		entry.ID, entry.CaseID, entry.Action, entry.Actor,
		string(detailsJSON), metadata, entry.Timestamp.Unix(), entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// metadataKeys are the details that describe the batch rather than the change.
var metadataKeys = []string{"batch_id", "batch_size"}

// LogCaseAction logs a case-related action. Batch keys in details are
// stored as metadata.
func (s *SQLStore) LogCaseAction(ctx context.Context, caseID, action, actor string, details map[string]interface{}) error {
	entry := AuditEntry{
		CaseID:  caseID,
		Action:  action,
		Actor:   actor,
		Details: make(map[string]interface{}, len(details)),
	}
	for k, v := range details {
		entry.Details[k] = v
	}
	for _, k := range metadataKeys {
		v, ok := entry.Details[k]
		if !ok {
			continue
		}
		delete(entry.Details, k)
		if entry.Metadata == nil {
			entry.Metadata = map[string]string{}
		}
		switch t := v.(type) {
		case string:
			entry.Metadata[k] = t
		case int:
			entry.Metadata[k] = strconv.Itoa(t)
		default:
			entry.Metadata[k] = fmt.Sprint(t)
		}
	}
	return s.AddAuditEntry(ctx, entry)
}

// GetAuditEntries retrieves audit entries for a case, newest first
func (s *SQLStore) GetAuditEntries(ctx context.Context, caseID string, limit int) ([]AuditEntry, error) {
	query := `SELECT id, case_id, action, actor, details, metadata, timestamp, created_at
		FROM audit_entries WHERE case_id = ? ORDER BY timestamp DESC, created_at DESC`
	args := []interface{}{caseID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var metadataJSON *string
		var detailsJSON string
		var timestamp, createdAt int64

		err := rows.Scan(&entry.ID, &entry.CaseID, &entry.Action, &entry.Actor,
			&detailsJSON, &metadataJSON, &timestamp, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.Timestamp = time.Unix(timestamp, 0)
		entry.CreatedAt = time.Unix(createdAt, 0)

		if err := json.Unmarshal([]byte(detailsJSON), &entry.Details); err != nil {
			entry.Details = map[string]interface{}{"raw": detailsJSON}
		}
		if metadataJSON != nil {
			if err := json.Unmarshal([]byte(*metadataJSON), &entry.Metadata); err != nil {
				entry.Metadata = map[string]string{"raw": *metadataJSON}
			}
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return entries, nil
}
