package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

var errBackend = errors.New("backend unavailable")

// fakeStore is an in-memory store.Store. Query ignores the predicate.
type fakeStore struct {
	mu           sync.Mutex
	rows         []store.Row
	principal    *store.Principal
	principalErr error
	queryErr     error
	failIDs      map[string]bool
	gates        map[int32]chan struct{}
	blobs        map[string][]byte

	queries atomic.Int32
}

func newFakeStore(principal string, rows ...store.Row) *fakeStore {
	fs := &fakeStore{
		rows:    rows,
		failIDs: map[string]bool{},
		gates:   map[int32]chan struct{}{},
		blobs:   map[string][]byte{},
	}
	if principal != "" {
		fs.principal = &store.Principal{ID: principal}
	}
	return fs
}

func (fs *fakeStore) setRows(rows ...store.Row) {
	fs.mu.Lock()
	fs.rows = rows
	fs.mu.Unlock()
}

// block makes the n-th query wait until the returned channel is closed.
func (fs *fakeStore) block(n int32) chan struct{} {
	ch := make(chan struct{})
	fs.mu.Lock()
	fs.gates[n] = ch
	fs.mu.Unlock()
	return ch
}

func (fs *fakeStore) Query(ctx context.Context, q store.Query) ([]store.Row, error) {
	n := fs.queries.Add(1)
	fs.mu.Lock()
	rows := append([]store.Row{}, fs.rows...)
	err := fs.queryErr
	gate := fs.gates[n]
	fs.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, &store.StoreError{Op: "query", Table: q.Table, Err: err}
	}
	return rows, nil
}

func (fs *fakeStore) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.failIDs[store.AsString(row[store.ColID])] {
		return nil, &store.StoreError{Op: "insert", Table: table, Err: errBackend}
	}
	stored := store.Row{}
	for k, v := range row {
		stored[k] = v
	}
	if store.AsString(stored[store.ColID]) == "" {
		stored[store.ColID] = "generated-id"
	}
	fs.rows = append([]store.Row{stored}, fs.rows...)
	return stored, nil
}

func (fs *fakeStore) Update(ctx context.Context, table, id string, patch store.Row) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.failIDs[id] {
		return &store.StoreError{Op: "update", Table: table, Err: errBackend}
	}
	for _, r := range fs.rows {
		if store.AsString(r[store.ColID]) == id {
			for k, v := range patch {
				r[k] = v
			}
			return nil
		}
	}
	return &store.StoreError{Op: "update", Table: table, Err: store.ErrNotFound}
}

func (fs *fakeStore) Delete(ctx context.Context, table, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.failIDs[id] {
		return &store.StoreError{Op: "delete", Table: table, Err: errBackend}
	}
	for i, r := range fs.rows {
		if store.AsString(r[store.ColID]) == id {
			fs.rows = append(fs.rows[:i], fs.rows[i+1:]...)
			return nil
		}
	}
	return &store.StoreError{Op: "delete", Table: table, Err: store.ErrNotFound}
}

func (fs *fakeStore) UploadBlob(ctx context.Context, bucket, path string, data []byte) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	key := bucket + "/" + path
	fs.blobs[key] = data
	return key, nil
}

func (fs *fakeStore) CurrentPrincipal(ctx context.Context) (*store.Principal, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.principalErr != nil {
		return nil, fs.principalErr
	}
	if fs.principal == nil {
		return nil, nil
	}
	p := *fs.principal
	return &p, nil
}
