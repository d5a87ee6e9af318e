package cases

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

// Transformer maps raw rows into Records. It is safe for concurrent use.
type Transformer struct {
	now func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTransformer returns a Transformer using the wall clock and a randomly
// seeded generator for synthesized patient ids.
func NewTransformer() *Transformer {
	return &Transformer{
		now: time.Now,
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithClock replaces the clock used for image ages.
func (t *Transformer) WithClock(now func() time.Time) *Transformer {
	t.now = now
	return t
}

// WithRand replaces the generator used for synthesized patient ids.
func (t *Transformer) WithRand(r *rand.Rand) *Transformer {
	t.mu.Lock()
	t.rnd = r
	t.mu.Unlock()
	return t
}

// Now returns the transformer's current time.
func (t *Transformer) Now() time.Time {
	return t.now()
}

var defaultTransformer = NewTransformer()

// Transform maps row using the wall clock and the shared generator.
func Transform(row store.Row) Record {
	return defaultTransformer.Transform(row)
}

// Transform maps one raw row into a Record. Missing or malformed fields fall
// back to their defaults; it never fails. A stored priority is ignored.
func (t *Transformer) Transform(row store.Row) Record {
	now := t.now()

	rec := Record{
		ID:               store.AsString(row[store.ColID]),
		OwnerID:          store.AsString(row[store.ColUserID]),
		PatientName:      store.AsString(row[store.ColPatientName]),
		PatientID:        store.AsString(row[store.ColPatientID]),
		Modality:         store.AsString(row[store.ColModality]),
		BodyPart:         store.AsString(row[store.ColBodyPart]),
		FileName:         store.AsString(row[store.ColFileName]),
		Status:           ParseStatus(store.AsString(row[store.ColStatus])),
		SeverityRating:   severityOf(row[store.ColSeverityRating]),
		Findings:         store.AsString(row[store.ColFindings]),
		AssignedTo:       store.AsString(row[store.ColAssignedTo]),
		RadiologistNotes: store.AsString(row[store.ColRadiologistNotes]),
		Comment:          store.AsString(row[store.ColComment]),
		ImageData:        store.AsString(row[store.ColImageData]),
		CreatedAt:        store.AsTime(row[store.ColCreatedAt]),
		UpdatedAt:        store.AsTime(row[store.ColUpdatedAt]),
		ProcessedAt:      store.AsTime(row[store.ColProcessedAt]),
	}
	if conf, ok := store.AsInt(row[store.ColConfidenceScore]); ok {
		rec.AIConfidence = conf
	}
	if rec.PatientID == "" {
		rec.PatientID = t.patientID(rec.PatientName)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.explicitSource = store.AsString(row[store.ColSource])
	rec.Source = DeriveSource(rec.explicitSource, rec.OwnerID, rec.FileName)
	rec.derive(now)
	return rec
}

// derive recomputes every field that depends on other fields.
func (r *Record) derive(now time.Time) {
	r.Priority = derive.SeverityToPriority(r.SeverityRating)
	r.ImageType = ImageType(r.Modality, r.BodyPart)
	r.ImageAge = ImageAge(r.CreatedAt, now)
}

func (t *Transformer) patientID(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return SynthesizePatientID(name, t.rnd)
}

func severityOf(v any) int {
	n, ok := store.AsInt(v)
	if !ok || n <= 0 {
		return DefaultSeverity
	}
	if n > 10 {
		return 10
	}
	return n
}

// SynthesizePatientID builds PAT-<prefix>-<4 digits> from a patient name. The
// prefix is the first six letters or digits of the name, upper-cased, or ANON.
func SynthesizePatientID(name string, r *rand.Rand) string {
	var b strings.Builder
	for _, c := range name {
		if b.Len() >= 6 {
			break
		}
		if c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c)) {
			b.WriteRune(unicode.ToUpper(c))
		}
	}
	prefix := b.String()
	if prefix == "" {
		prefix = "ANON"
	}
	return fmt.Sprintf("PAT-%s-%04d", prefix, r.IntN(10000))
}

// ImageType falls back from modality to body part to "Unknown".
func ImageType(modality, bodyPart string) string {
	switch {
	case strings.TrimSpace(modality) != "":
		return strings.TrimSpace(modality)
	case strings.TrimSpace(bodyPart) != "":
		return strings.TrimSpace(bodyPart)
	default:
		return "Unknown"
	}
}

// ImageAge renders the time since createdAt as "Nd", "Nh" or "< 1h".
func ImageAge(createdAt, now time.Time) string {
	if createdAt.IsZero() {
		return "unknown"
	}
	age := now.Sub(createdAt)
	switch {
	case age >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(age/(24*time.Hour)))
	case age >= time.Hour:
		return fmt.Sprintf("%dh", int(age/time.Hour))
	default:
		return "< 1h"
	}
}

// DeriveSource picks manual or system: an explicit stored value wins, then
// an owning user means manual, then a file name mentioning "manual".
func DeriveSource(explicit, ownerID, fileName string) Source {
	switch Source(strings.ToLower(strings.TrimSpace(explicit))) {
	case SourceManual:
		return SourceManual
	case SourceSystem:
		return SourceSystem
	}
	if strings.TrimSpace(ownerID) != "" {
		return SourceManual
	}
	if strings.Contains(strings.ToLower(fileName), "manual") {
		return SourceManual
	}
	return SourceSystem
}
