package selection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

// Mutator applies mutations to single cases. *repository.Repository implements it.
type Mutator interface {
	Get(id string) (cases.Record, bool)
	Patch(ctx context.Context, id string, patch store.Row) error
	Archive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Auditor records case actions. *store.SQLStore implements it.
type Auditor interface {
	LogCaseAction(ctx context.Context, caseID, action, actor string, details map[string]interface{}) error
}

// OpKind names a bulk operation.
type OpKind string

const (
	OpStatus   OpKind = "status"
	OpPriority OpKind = "priority"
	OpAssign   OpKind = "assign"
	OpExport   OpKind = "export"
	OpArchive  OpKind = "archive"
	OpDelete   OpKind = "delete"
)

// OpKinds lists every bulk operation.
var OpKinds = []OpKind{OpStatus, OpPriority, OpAssign, OpExport, OpArchive, OpDelete}

// ErrCaseNotLoaded is reported for export ids the repository does not hold.
var ErrCaseNotLoaded = errors.New("case not loaded")

// Operation is one bulk action and its argument.
type Operation struct {
	Kind     OpKind
	Status   cases.Status
	Priority derive.Priority
	// Assignee is the new assignee; empty unassigns.
	Assignee string
	// ExportPath overrides the generated export file name.
	ExportPath string
}

// StatusOp sets the status of every case.
func StatusOp(s cases.Status) Operation { return Operation{Kind: OpStatus, Status: s} }

// PriorityOp sets the priority of every case.
func PriorityOp(p derive.Priority) Operation { return Operation{Kind: OpPriority, Priority: p} }

// AssignOp assigns every case to assignee.
func AssignOp(assignee string) Operation { return Operation{Kind: OpAssign, Assignee: assignee} }

// ExportOp writes every case to one workbook.
func ExportOp(path string) Operation { return Operation{Kind: OpExport, ExportPath: path} }

// ArchiveOp archives every case.
func ArchiveOp() Operation { return Operation{Kind: OpArchive} }

// DeleteOp deletes every case.
func DeleteOp() Operation { return Operation{Kind: OpDelete} }

// Validate checks that op carries the argument its kind needs.
func (op Operation) Validate() error {
	switch op.Kind {
	case OpStatus:
		if _, err := cases.ValidateStatus(string(op.Status)); err != nil {
			return err
		}
	case OpPriority:
		if op.Priority.Rank() == 0 {
			return fmt.Errorf("invalid priority %q", op.Priority)
		}
	case OpAssign, OpExport, OpArchive, OpDelete:
	default:
		return fmt.Errorf("unknown bulk operation %q", op.Kind)
	}
	return nil
}

// ItemResult is the outcome for one id.
type ItemResult struct {
	ID  string
	Err error
}

// OK reports whether the sub-operation succeeded.
func (r ItemResult) OK() bool { return r.Err == nil }

// BulkResult holds one result per dispatched id, in input order.
type BulkResult struct {
	Op      OpKind
	BatchID string
	Items   []ItemResult
	// ExportPath is the written workbook for export operations.
	ExportPath string
}

// Succeeded returns the ids that succeeded.
func (b BulkResult) Succeeded() []string {
	var out []string
	for _, it := range b.Items {
		if it.OK() {
			out = append(out, it.ID)
		}
	}
	return out
}

// Failed returns the results that failed.
func (b BulkResult) Failed() []ItemResult {
	var out []ItemResult
	for _, it := range b.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// Summary renders "N of M succeeded".
func (b BulkResult) Summary() string {
	return fmt.Sprintf("%d of %d succeeded", len(b.Succeeded()), len(b.Items))
}

// Err returns a *PartialFailure when any item failed.
func (b BulkResult) Err() error {
	failed := b.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &PartialFailure{Op: b.Op, Total: len(b.Items), Failed: failed}
}

// PartialFailure lists the ids a bulk operation could not apply. The other
// ids were applied and are not rolled back.
type PartialFailure struct {
	Op     OpKind
	Total  int
	Failed []ItemResult
}

func (e *PartialFailure) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", f.ID, f.Err))
	}
	return fmt.Sprintf("bulk %s: %d of %d failed (%s)", e.Op, len(e.Failed), e.Total, strings.Join(parts, "; "))
}

// FailedIDs returns the failed ids in input order.
func (e *PartialFailure) FailedIDs() []string {
	out := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		out = append(out, f.ID)
	}
	return out
}

// DispatchBulk applies op to every id independently. A failing id never
// stops the others and nothing is rolled back. Duplicate ids are dispatched
// once. Successfully archived or deleted ids leave the selection.
func (c *Coordinator) DispatchBulk(ctx context.Context, op Operation, ids []string) BulkResult {
	start := c.opts.Now()
	ids = dedupe(ids)
	res := BulkResult{
		Op:      op.Kind,
		BatchID: uuid.NewString(),
		Items:   make([]ItemResult, len(ids)),
	}
	for i, id := range ids {
		res.Items[i].ID = id
	}

	if err := c.check(op); err != nil {
		for i := range res.Items {
			res.Items[i].Err = err
		}
		c.finish(ctx, op, &res, start)
		return res
	}

	if op.Kind == OpExport {
		c.export(op, &res)
		c.finish(ctx, op, &res, start)
		return res
	}

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i := range res.Items {
		item := &res.Items[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				item.Err = err
				return nil
			}
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					item.Err = err
					return nil
				}
			}
			item.Err = c.apply(ctx, op, item.ID)
			return nil
		})
	}
	_ = g.Wait()

	c.finish(ctx, op, &res, start)
	return res
}

func (c *Coordinator) check(op Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if c.opts.Mutator == nil {
		return errors.New("no case repository configured")
	}
	return nil
}

func (c *Coordinator) apply(ctx context.Context, op Operation, id string) error {
	m := c.opts.Mutator
	switch op.Kind {
	case OpStatus:
		return m.Patch(ctx, id, store.Row{store.ColStatus: string(op.Status)})
	case OpPriority:
		// Priority is derived from severity, so the severity is what changes.
		return m.Patch(ctx, id, store.Row{
			store.ColSeverityRating: derive.RepresentativeSeverity(op.Priority),
			store.ColPriority:       string(op.Priority),
		})
	case OpAssign:
		return m.Patch(ctx, id, store.Row{store.ColAssignedTo: strings.TrimSpace(op.Assignee)})
	case OpArchive:
		return m.Archive(ctx, id)
	case OpDelete:
		return m.Delete(ctx, id)
	}
	return fmt.Errorf("unknown bulk operation %q", op.Kind)
}

func (c *Coordinator) export(op Operation, res *BulkResult) {
	recs := make([]cases.Record, 0, len(res.Items))
	var found []*ItemResult
	for i := range res.Items {
		item := &res.Items[i]
		rec, ok := c.opts.Mutator.Get(item.ID)
		if !ok {
			item.Err = fmt.Errorf("case %s: %w", item.ID, ErrCaseNotLoaded)
			continue
		}
		recs = append(recs, rec)
		found = append(found, item)
	}
	if len(found) == 0 {
		return
	}

	path := op.ExportPath
	if path == "" {
		name := fmt.Sprintf("cases-%s.xlsx", c.opts.Now().UTC().Format("20060102-150405"))
		path = filepath.Join(c.opts.ExportDir, name)
	}
	if err := c.opts.Exporter.Export(path, recs); err != nil {
		for _, item := range found {
			item.Err = err
		}
		return
	}
	res.ExportPath = path
}

// finish audits successes, trims the selection and records metrics.
func (c *Coordinator) finish(ctx context.Context, op Operation, res *BulkResult, start time.Time) {
	var removed []string
	for _, item := range res.Items {
		c.opts.Metrics.RecordBulkItem(string(op.Kind), item.OK())
		if !item.OK() {
			continue
		}
		if op.Kind == OpArchive || op.Kind == OpDelete {
			removed = append(removed, item.ID)
		}
		c.audit(ctx, op, res, item.ID)
	}
	if len(removed) > 0 {
		c.update(func(s Set) bool {
			changed := false
			for _, id := range removed {
				if s.Contains(id) {
					s.Remove(id)
					changed = true
				}
			}
			return changed
		})
	}

	c.opts.Metrics.RecordBulkBatch(string(op.Kind), c.opts.Now().Sub(start))
	c.logger.Info("bulk operation finished",
		zap.String("operation", string(op.Kind)),
		zap.String("batch_id", res.BatchID),
		zap.String("summary", res.Summary()))
}

func (c *Coordinator) audit(ctx context.Context, op Operation, res *BulkResult, id string) {
	if c.opts.Auditor == nil {
		return
	}
	details := map[string]interface{}{
		"batch_id":   res.BatchID,
		"batch_size": len(res.Items),
	}
	switch op.Kind {
	case OpStatus:
		details["status"] = string(op.Status)
	case OpPriority:
		details["priority"] = string(op.Priority)
		details["severity_rating"] = derive.RepresentativeSeverity(op.Priority)
	case OpAssign:
		details["assigned_to"] = op.Assignee
	case OpExport:
		details["path"] = res.ExportPath
	}
	if err := c.opts.Auditor.LogCaseAction(context.WithoutCancel(ctx), id, string(op.Kind), c.opts.Actor, details); err != nil {
		c.logger.Warn("audit entry not written", zap.String("case_id", id), zap.Error(err))
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
