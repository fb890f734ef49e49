// Package mocks provides an in-memory Session for tests.
package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
)

const (
	DriveRootID  = "drive-root"
	PhotosRootID = "photos-root"
)

type node struct {
	entry    types.RemoteEntry
	children []string
	content  []byte
}

// MockSession is an in-memory drive/photos tree. Children keep insertion
// order, which stands in for remote listing order.
type MockSession struct {
	mu    sync.Mutex
	nodes map[string]*node

	// RangeSupported toggles FetchRange; when false it returns
	// session.ErrRangeUnsupported.
	RangeSupported bool

	// ListErr, FetchErr inject errors per entry ID
	ListErr  map[string]error
	FetchErr map[string]error
	// ShortBy truncates the stream of an entry by n bytes
	ShortBy map[string]int
	// FailAfter breaks the stream of an entry after n bytes with err
	FailAfter map[string]int64
	// FetchDelay slows every fetch down; used for cancellation and
	// concurrency tests.
	FetchDelay time.Duration

	calls map[string]int
}

// NewMockSession creates a session with empty drive and photos roots
func NewMockSession() *MockSession {
	m := &MockSession{
		nodes:          make(map[string]*node),
		RangeSupported: true,
		ListErr:        make(map[string]error),
		FetchErr:       make(map[string]error),
		ShortBy:        make(map[string]int),
		FailAfter:      make(map[string]int64),
		calls:          make(map[string]int),
	}
	m.nodes[DriveRootID] = &node{entry: types.RemoteEntry{ID: DriveRootID, Name: "", Kind: types.KindFolder}}
	m.nodes[PhotosRootID] = &node{entry: types.RemoteEntry{ID: PhotosRootID, Name: "Photos", Kind: types.KindFolder}}
	return m
}

func (m *MockSession) add(parentID string, e types.RemoteEntry, content []byte) types.RemoteEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, ok := m.nodes[parentID]
	if !ok {
		panic(fmt.Sprintf("mocks: unknown parent %q", parentID))
	}
	if _, dup := m.nodes[e.ID]; dup {
		panic(fmt.Sprintf("mocks: duplicate id %q", e.ID))
	}
	m.nodes[e.ID] = &node{entry: e, content: content}
	parent.children = append(parent.children, e.ID)
	return e
}

// AddFolder adds a folder under parentID
func (m *MockSession) AddFolder(parentID, id, name string) types.RemoteEntry {
	return m.add(parentID, types.RemoteEntry{ID: id, Name: name, Kind: types.KindFolder}, nil)
}

// AddFile adds a file with the given content under parentID
func (m *MockSession) AddFile(parentID, id, name string, content []byte) types.RemoteEntry {
	return m.add(parentID, types.RemoteEntry{
		ID:           id,
		Name:         name,
		Kind:         types.KindFile,
		Size:         int64(len(content)),
		ModifiedTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}, content)
}

// AddAlbum adds an album to the photos library
func (m *MockSession) AddAlbum(id, name string) types.RemoteEntry {
	return m.add(PhotosRootID, types.RemoteEntry{ID: id, Name: name, Kind: types.KindAlbum}, nil)
}

// AddAsset adds an asset to an album
func (m *MockSession) AddAsset(albumID, id, name string, content []byte) types.RemoteEntry {
	return m.add(albumID, types.RemoteEntry{
		ID:   id,
		Name: name,
		Kind: types.KindAsset,
		Size: int64(len(content)),
	}, content)
}

// SetContent replaces the remote bytes of an entry and updates its size
func (m *MockSession) SetContent(id string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[id]
	n.content = content
	n.entry.Size = int64(len(content))
}

// Calls returns how many times op was invoked. Ops: drive-root,
// photos-root, list, fetch, fetch-range, resolve-album.
func (m *MockSession) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// FetchCalls is the number of FetchFull plus FetchRange calls
func (m *MockSession) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls["fetch"] + m.calls["fetch-range"]
}

func (m *MockSession) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func (m *MockSession) DriveRoot(ctx context.Context) (types.RemoteEntry, error) {
	m.record("drive-root")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[DriveRootID].entry, nil
}

func (m *MockSession) PhotosRoot(ctx context.Context) (types.RemoteEntry, error) {
	m.record("photos-root")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[PhotosRootID].entry, nil
}

func (m *MockSession) ListChildren(ctx context.Context, entryID string) ([]types.RemoteEntry, error) {
	m.record("list")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ListErr[entryID]; err != nil {
		return nil, err
	}
	n, ok := m.nodes[entryID]
	if !ok {
		return nil, session.ErrNotFound
	}
	out := make([]types.RemoteEntry, 0, len(n.children))
	for _, id := range n.children {
		out = append(out, m.nodes[id].entry)
	}
	return out, nil
}

func (m *MockSession) open(ctx context.Context, entryID string, offset int64) (io.ReadCloser, error) {
	if m.FetchDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.FetchDelay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FetchErr[entryID]; err != nil {
		return nil, err
	}
	n, ok := m.nodes[entryID]
	if !ok || n.entry.IsContainer() {
		return nil, session.ErrNotFound
	}
	data := n.content
	if offset > int64(len(data)) {
		return nil, &session.StatusError{Code: 416, Op: "fetch-range"}
	}
	data = data[offset:]
	if short := m.ShortBy[entryID]; short > 0 && short <= len(data) {
		data = data[:len(data)-short]
	}
	var r io.Reader = bytes.NewReader(append([]byte(nil), data...))
	if limit, ok := m.FailAfter[entryID]; ok {
		r = &failingReader{r: io.LimitReader(r, limit)}
	}
	return &ctxReader{ctx: ctx, r: r}, nil
}

func (m *MockSession) FetchFull(ctx context.Context, entryID string) (io.ReadCloser, error) {
	m.record("fetch")
	return m.open(ctx, entryID, 0)
}

func (m *MockSession) FetchRange(ctx context.Context, entryID string, offset int64) (io.ReadCloser, error) {
	m.record("fetch-range")
	if !m.RangeSupported {
		return nil, session.ErrRangeUnsupported
	}
	return m.open(ctx, entryID, offset)
}

// ResolveAlbum matches an album ID first, then an album name
func (m *MockSession) ResolveAlbum(ctx context.Context, nameOrID string) (types.RemoteEntry, error) {
	m.record("resolve-album")
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[nameOrID]; ok && n.entry.Kind == types.KindAlbum {
		return n.entry, nil
	}
	for _, id := range m.nodes[PhotosRootID].children {
		if e := m.nodes[id].entry; e.Kind == types.KindAlbum && e.Name == nameOrID {
			return e, nil
		}
	}
	return types.RemoteEntry{}, session.ErrNotFound
}

// ErrStreamBroken is returned by streams configured through FailAfter
var ErrStreamBroken = fmt.Errorf("mock: connection reset mid-stream")

type failingReader struct {
	r io.Reader
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, ErrStreamBroken
	}
	return n, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func (c *ctxReader) Close() error { return nil }

var _ session.Session = (*MockSession)(nil)
