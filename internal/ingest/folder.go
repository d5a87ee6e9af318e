package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/metrics"
	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

// ImageFileKey names an image file, relative to the case file, to attach after creation.
const ImageFileKey = "image_file"

// Creator persists ingested cases. *repository.Repository implements it.
type Creator interface {
	Create(ctx context.Context, row store.Row) (cases.Record, error)
	AttachImage(ctx context.Context, id, fileName string, data []byte) (string, error)
}

// FolderOptions controls ingest-folder behavior.
type FolderOptions struct {
	Dir      string
	Watch    bool
	Patterns []string // e.g. []string{"*.jsonl", "*.json"}
	// OwnerID is stamped on cases that carry no user_id. Empty leaves them unowned.
	OwnerID string
	// When true and in Watch mode, start JSONL files at EOF on startup to avoid
	// re-ingesting existing lines each time the app starts.
	TailFromEnd bool
	Metrics     *metrics.ConsoleMetrics
	Logger      *zap.Logger
}

// Stats counts ingested and rejected case records.
type Stats struct {
	Ingested int
	Errors   int
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// FolderIngestor creates cases from raw case JSON files in a directory (one-shot or watch mode).
type FolderIngestor struct {
	creator Creator
	opts    FolderOptions
	logger  *zap.Logger

	mu      sync.Mutex
	offsets map[string]int64 // per-file tail offset for jsonl
	seen    map[string]fileStamp
	stats   Stats
}

// NewFolderIngestor constructs a folder ingestor.
func NewFolderIngestor(c Creator, opts FolderOptions) *FolderIngestor {
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.jsonl", "*.json"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FolderIngestor{
		creator: c,
		opts:    opts,
		logger:  logger.With(zap.String("component", "ingest_folder"), zap.String("dir", opts.Dir)),
		offsets: make(map[string]int64),
		seen:    make(map[string]fileStamp),
	}
}

// Run executes the ingestion per options (one-shot or watch).
func (fi *FolderIngestor) Run(ctx context.Context) error {
	if err := fi.scanOnce(ctx); err != nil {
		return err
	}

	if !fi.opts.Watch {
		st := fi.Stats()
		fi.logger.Info("completed one-shot ingest", zap.Int("ingested", st.Ingested), zap.Int("errors", st.Errors))
		return nil
	}
	return fi.watchLoop(ctx)
}

// Stats returns the counters so far.
func (fi *FolderIngestor) Stats() Stats {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.stats
}

func (fi *FolderIngestor) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range fi.opts.Patterns {
		p := strings.TrimSpace(strings.ToLower(pat))
		ok, _ := filepath.Match(p, lower)
		if ok {
			return true
		}
	}
	return false
}

func (fi *FolderIngestor) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(fi.opts.Dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !fi.matches(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(fi.opts.Dir, e.Name())
		if strings.HasSuffix(strings.ToLower(e.Name()), ".jsonl") && fi.opts.Watch && fi.opts.TailFromEnd {
			if st, err := os.Stat(path); err == nil {
				fi.mu.Lock()
				fi.offsets[path] = st.Size()
				fi.mu.Unlock()
			}
			continue
		}
		fi.processPath(ctx, path)
	}
	return nil
}

func (fi *FolderIngestor) processPath(ctx context.Context, path string) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".jsonl"):
		fi.mu.Lock()
		offset := fi.offsets[path]
		fi.mu.Unlock()

		newOffset, err := fi.processJSONL(ctx, path, offset)
		if err != nil {
			fi.logger.Warn("error tailing file", zap.String("file", path), zap.Error(err))
			fi.countError()
		}
		fi.mu.Lock()
		fi.offsets[path] = newOffset
		fi.mu.Unlock()
	default:
		if !fi.changed(path) {
			return
		}
		if err := fi.processJSONFile(ctx, path); err != nil {
			fi.logger.Warn("error processing file", zap.String("file", path), zap.Error(err))
			fi.countError()
		}
	}
}

// changed reports whether a whole-file case document differs from the last
// version processed, so repeated write events don't create duplicates.
func (fi *FolderIngestor) changed(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return true
	}
	stamp := fileStamp{size: st.Size(), modTime: st.ModTime()}
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if prev, ok := fi.seen[path]; ok && prev == stamp {
		return false
	}
	fi.seen[path] = stamp
	return true
}

func (fi *FolderIngestor) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	if err := w.Add(fi.opts.Dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}

	fi.logger.Info("watching directory", zap.Strings("patterns", fi.opts.Patterns))

	for {
		select {
		case <-ctx.Done():
			st := fi.Stats()
			fi.logger.Info("watch stopping", zap.Int("ingested", st.Ingested), zap.Int("errors", st.Errors))
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !fi.matches(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				fi.processPath(ctx, ev.Name)
			}
			if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
				fi.mu.Lock()
				delete(fi.offsets, ev.Name)
				delete(fi.seen, ev.Name)
				fi.mu.Unlock()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				fi.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (fi *FolderIngestor) processJSONL(ctx context.Context, path string, startOffset int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		// File might be transiently missing (rename/rotate)
		return startOffset, err
	}
	defer f.Close()

	if st, err := f.Stat(); err == nil && st.Size() < startOffset {
		// truncated
		startOffset = 0
	}
	if startOffset > 0 {
		if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
			return startOffset, err
		}
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	offset := startOffset
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// Leave a partial trailing line for the next write event.
			return offset, nil
		}
		if err != nil {
			return offset, err
		}
		offset += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := fi.ingestRaw(ctx, filepath.Dir(path), line); err != nil {
			fi.logger.Warn("case line rejected", zap.String("file", path), zap.Error(err))
		}
	}
}

func (fi *FolderIngestor) processJSONFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	trim := bytes.TrimSpace(data)
	if len(trim) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if trim[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trim, &arr); err != nil {
			return err
		}
		for _, raw := range arr {
			if err := fi.ingestRaw(ctx, dir, raw); err != nil {
				fi.logger.Warn("case entry rejected", zap.String("file", path), zap.Error(err))
			}
		}
		return nil
	}
	if err := fi.ingestRaw(ctx, dir, trim); err != nil {
		fi.logger.Warn("case document rejected", zap.String("file", path), zap.Error(err))
	}
	return nil
}

// ingestRaw creates one case from a raw JSON object and counts the outcome.
func (fi *FolderIngestor) ingestRaw(ctx context.Context, dir string, raw []byte) error {
	err := fi.createCase(ctx, dir, raw)
	fi.opts.Metrics.RecordIngest(err == nil)
	if err != nil {
		fi.countError()
		return err
	}
	fi.mu.Lock()
	fi.stats.Ingested++
	fi.mu.Unlock()
	return nil
}

func (fi *FolderIngestor) createCase(ctx context.Context, dir string, raw []byte) error {
	row, err := DecodeRow(raw)
	if err != nil {
		return err
	}

	imageFile := store.AsString(row[ImageFileKey])
	delete(row, ImageFileKey)

	if store.AsString(row[store.ColUserID]) == "" && fi.opts.OwnerID != "" {
		row[store.ColUserID] = fi.opts.OwnerID
	}
	if store.AsString(row[store.ColSource]) == "" {
		row[store.ColSource] = string(cases.DeriveSource("", store.AsString(row[store.ColUserID]), store.AsString(row[store.ColFileName])))
	}
	if imageFile != "" && store.AsString(row[store.ColFileName]) == "" {
		row[store.ColFileName] = filepath.Base(imageFile)
	}

	rec, err := fi.creator.Create(ctx, row)
	if err != nil {
		return err
	}
	fi.logger.Debug("case ingested", zap.String("case_id", rec.ID), zap.String("priority", string(rec.Priority)))

	if imageFile == "" {
		return nil
	}
	imgPath := imageFile
	if !filepath.IsAbs(imgPath) {
		imgPath = filepath.Join(dir, imgPath)
	}
	data, err := os.ReadFile(imgPath)
	if err != nil {
		return fmt.Errorf("case %s created but image unreadable: %w", rec.ID, err)
	}
	if _, err := fi.creator.AttachImage(ctx, rec.ID, filepath.Base(imgPath), data); err != nil {
		return fmt.Errorf("case %s created but image not attached: %w", rec.ID, err)
	}
	return nil
}

func (fi *FolderIngestor) countError() {
	fi.mu.Lock()
	fi.stats.Errors++
	fi.mu.Unlock()
}

// DecodeRow parses a raw case JSON object. Numbers are kept as json.Number.
func DecodeRow(raw []byte) (store.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row store.Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("invalid case JSON: %w", err)
	}
	if row == nil {
		return nil, errors.New("invalid case JSON: not an object")
	}
	return row, nil
}
