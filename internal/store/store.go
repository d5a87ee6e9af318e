package store

import "context"

// Row is a raw record as persisted by a store. Keys are snake_case column names.
type Row map[string]any

// Tables and buckets known to the console.
const (
	TableCases   = "cases"
	BucketImages = "case-images"
)

// Case columns.
const (
	ColID               = "id"
	ColUserID           = "user_id"
	ColPatientName      = "patient_name"
	ColPatientID        = "patient_id"
	ColModality         = "modality"
	ColBodyPart         = "body_part"
	ColFileName         = "file_name"
	ColStatus           = "status"
	ColPriority         = "priority"
	ColSeverityRating   = "severity_rating"
	ColConfidenceScore  = "confidence_score"
	ColFindings         = "findings"
	ColSource           = "source"
	ColAssignedTo       = "assigned_to"
	ColRadiologistNotes = "radiologist_notes"
	ColComment          = "comment"
	ColImageData        = "image_data"
	ColArchived         = "archived"
	ColCreatedAt        = "created_at"
	ColUpdatedAt        = "updated_at"
	ColProcessedAt      = "processed_at"
)

// Principal is the authenticated actor on whose behalf records are fetched.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Query selects rows from a table.
//
// When OwnerID is set, rows owned by it match, plus unowned rows if
// IncludeUnowned is true. With an empty OwnerID, IncludeUnowned restricts the
// result to unowned rows and no owner constraint applies otherwise.
type Query struct {
	Table           string
	OwnerID         string
	IncludeUnowned  bool
	IncludeArchived bool
	OrderBy         string
	Descending      bool
	Limit           int
}

// VisibleTo returns the dashboard query: rows owned by principalID or by no
// one, newest first, archived rows excluded.
func VisibleTo(principalID string) Query {
	return Query{
		Table:          TableCases,
		OwnerID:        principalID,
		IncludeUnowned: true,
		OrderBy:        ColCreatedAt,
		Descending:     true,
	}
}

// Store is the narrow contract the console needs from its persistence backend.
type Store interface {
	// Query returns the rows matching q.
	Query(ctx context.Context, q Query) ([]Row, error)

	// Insert stores row and returns it as persisted, including the assigned id and timestamps.
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update applies patch to the row identified by id.
	Update(ctx context.Context, table, id string, patch Row) error

	// Delete removes the row identified by id.
	Delete(ctx context.Context, table, id string) error

	// UploadBlob stores data under bucket/path and returns the stored path.
	UploadBlob(ctx context.Context, bucket, path string, data []byte) (string, error)

	// CurrentPrincipal returns the session principal, or nil when there is no session.
	CurrentPrincipal(ctx context.Context) (*Principal, error)
}
