package cases

import (
	"time"

	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

// ApplyPatch returns rec with the columns in patch applied and derived fields
// recomputed. Unknown columns are ignored; id and created_at cannot change.
func ApplyPatch(rec Record, patch store.Row, now time.Time) Record {
	sourceInputs := false
	for col, v := range patch {
		switch col {
		case store.ColUserID:
			rec.OwnerID = store.AsString(v)
			sourceInputs = true
		case store.ColPatientName:
			rec.PatientName = store.AsString(v)
		case store.ColPatientID:
			if id := store.AsString(v); id != "" {
				rec.PatientID = id
			}
		case store.ColModality:
			rec.Modality = store.AsString(v)
		case store.ColBodyPart:
			rec.BodyPart = store.AsString(v)
		case store.ColFileName:
			rec.FileName = store.AsString(v)
			sourceInputs = true
		case store.ColStatus:
			rec.Status = ParseStatus(store.AsString(v))
		case store.ColSeverityRating:
			rec.SeverityRating = severityOf(v)
		case store.ColConfidenceScore:
			if n, ok := store.AsInt(v); ok {
				rec.AIConfidence = n
			}
		case store.ColFindings:
			rec.Findings = store.AsString(v)
		case store.ColSource:
			rec.explicitSource = store.AsString(v)
			sourceInputs = true
		case store.ColAssignedTo:
			rec.AssignedTo = store.AsString(v)
		case store.ColRadiologistNotes:
			rec.RadiologistNotes = store.AsString(v)
		case store.ColComment:
			rec.Comment = store.AsString(v)
		case store.ColImageData:
			rec.ImageData = store.AsString(v)
		case store.ColProcessedAt:
			rec.ProcessedAt = store.AsTime(v)
		}
	}
	// Source depends on three columns, so it is derived once they are all applied.
	if sourceInputs {
		rec.Source = DeriveSource(rec.explicitSource, rec.OwnerID, rec.FileName)
	}
	rec.UpdatedAt = now
	rec.derive(now)
	return rec
}

// ToRow renders rec back into store columns. Derived-only fields are left out
// except priority, which is written for readers that still look at it.
func (r Record) ToRow() store.Row {
	row := store.Row{
		store.ColID:               r.ID,
		store.ColPatientName:      r.PatientName,
		store.ColPatientID:        r.PatientID,
		store.ColModality:         r.Modality,
		store.ColBodyPart:         r.BodyPart,
		store.ColFileName:         r.FileName,
		store.ColStatus:           string(r.Status),
		store.ColPriority:         string(r.Priority),
		store.ColSeverityRating:   r.SeverityRating,
		store.ColConfidenceScore:  r.AIConfidence,
		store.ColFindings:         r.Findings,
		store.ColAssignedTo:       r.AssignedTo,
		store.ColRadiologistNotes: r.RadiologistNotes,
		store.ColComment:          r.Comment,
		store.ColImageData:        r.ImageData,
	}
	if r.OwnerID != "" {
		row[store.ColUserID] = r.OwnerID
	}
	if r.explicitSource != "" {
		row[store.ColSource] = r.explicitSource
	}
	if !r.CreatedAt.IsZero() {
		row[store.ColCreatedAt] = r.CreatedAt
	}
	if !r.UpdatedAt.IsZero() {
		row[store.ColUpdatedAt] = r.UpdatedAt
	}
	if !r.ProcessedAt.IsZero() {
		row[store.ColProcessedAt] = r.ProcessedAt
	}
	return row
}
