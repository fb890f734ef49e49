package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/testing/mocks"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
)

func newTree() *mocks.MockSession {
	m := mocks.NewMockSession()
	m.AddFolder(mocks.DriveRootID, "docs", "Docs")
	m.AddFolder("docs", "rep1", "Reports")
	m.AddFolder("docs", "rep2", "Reports")
	m.AddFile("rep1", "q3", "Q3.pdf", []byte("q3"))
	m.AddFile(mocks.DriveRootID, "top", "top.txt", []byte("top"))

	m.AddAlbum("alb-cars", "Cars")
	m.AddAlbum("alb-trip1", "Trip")
	m.AddAlbum("alb-trip2", "Trip")
	return m
}

func TestResolve_ByPath(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	ctx := context.Background()

	tests := []struct {
		path   string
		wantID string
		rel    string
	}{
		{"Docs", "docs", "Docs"},
		{"/Docs/Reports/", "rep1", "Docs/Reports"},
		{"Docs/Reports/Q3.pdf", "q3", "Docs/Reports/Q3.pdf"},
		{"top.txt", "top", "top.txt"},
		{"/", mocks.DriveRootID, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			roots, err := r.Resolve(ctx, types.ByPath(tt.path), ResolveOptions{})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if len(roots) != 1 {
				t.Fatalf("got %d roots, want 1", len(roots))
			}
			if roots[0].Entry.ID != tt.wantID || roots[0].RelPath != tt.rel {
				t.Errorf("got (%s, %q), want (%s, %q)", roots[0].Entry.ID, roots[0].RelPath, tt.wantID, tt.rel)
			}
		})
	}
}

func TestResolve_ByPathMissingSegment(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	_, err := r.Resolve(context.Background(), types.ByPath("Docs/Missing/x"), ResolveOptions{})
	if !utils.HasCode(err, utils.ErrCodeFileNotFound) {
		t.Fatalf("error = %v, want FILE_NOT_FOUND", err)
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatal("expected AppError")
	}
	if appErr.CLIError.Context["segment"] != "Missing" {
		t.Errorf("segment context = %v", appErr.CLIError.Context["segment"])
	}
}

func TestResolve_ByPathThroughFile(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	_, err := r.Resolve(context.Background(), types.ByPath("top.txt/inner"), ResolveOptions{})
	if !utils.HasCode(err, utils.ErrCodeFileNotFound) {
		t.Fatalf("error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestResolve_ByPathIsCaseSensitive(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	_, err := r.Resolve(context.Background(), types.ByPath("docs"), ResolveOptions{})
	if !utils.HasCode(err, utils.ErrCodeFileNotFound) {
		t.Fatalf("error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestResolve_DuplicatePolicy(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	ctx := context.Background()

	roots, err := r.Resolve(ctx, types.ByPath("Docs/Reports"), ResolveOptions{DuplicatePolicy: utils.DuplicatePolicyFirst})
	if err != nil {
		t.Fatalf("first policy error = %v", err)
	}
	if roots[0].Entry.ID != "rep1" {
		t.Errorf("first policy picked %s, want rep1", roots[0].Entry.ID)
	}

	_, err = r.Resolve(ctx, types.ByPath("Docs/Reports"), ResolveOptions{DuplicatePolicy: utils.DuplicatePolicyStrict})
	if !utils.HasCode(err, utils.ErrCodeAmbiguousPath) {
		t.Fatalf("strict policy error = %v, want AMBIGUOUS_PATH", err)
	}

	_, err = r.Resolve(ctx, types.ByPath("Docs"), ResolveOptions{DuplicatePolicy: "newest"})
	if !utils.HasCode(err, utils.ErrCodeInvalidArgument) {
		t.Fatalf("unknown policy error = %v", err)
	}
}

func TestResolve_Albums(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	ctx := context.Background()

	roots, err := r.Resolve(ctx, types.ByName("Cars"), ResolveOptions{})
	if err != nil {
		t.Fatalf("ByName error = %v", err)
	}
	if roots[0].Entry.ID != "alb-cars" || roots[0].RelPath != "Photos/Cars" {
		t.Errorf("ByName got %+v", roots[0])
	}

	_, err = r.Resolve(ctx, types.ByName("Trip"), ResolveOptions{DuplicatePolicy: utils.DuplicatePolicyStrict})
	if !utils.HasCode(err, utils.ErrCodeAmbiguousPath) {
		t.Errorf("ByName strict error = %v", err)
	}

	_, err = r.Resolve(ctx, types.ByName("Boats"), ResolveOptions{})
	if !utils.HasCode(err, utils.ErrCodeFileNotFound) {
		t.Errorf("missing album error = %v", err)
	}
}

func TestResolve_ByIDDisambiguatesDirectory(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	ctx := context.Background()

	first, err := r.Resolve(ctx, types.ByID("alb-trip1"), ResolveOptions{})
	if err != nil {
		t.Fatalf("ByID error = %v", err)
	}
	second, err := r.Resolve(ctx, types.ByID("alb-trip2"), ResolveOptions{})
	if err != nil {
		t.Fatalf("ByID error = %v", err)
	}
	if first[0].RelPath == second[0].RelPath {
		t.Fatalf("two albums share %q", first[0].RelPath)
	}
	if first[0].RelPath != "Photos/Trip" || second[0].RelPath != "Photos/Trip-1" {
		t.Errorf("RelPaths = %q, %q; want Photos/Trip, Photos/Trip-1", first[0].RelPath, second[0].RelPath)
	}

	unique, _ := r.Resolve(ctx, types.ByID("alb-cars"), ResolveOptions{})
	if unique[0].RelPath != "Photos/Cars" {
		t.Errorf("unique album RelPath = %q", unique[0].RelPath)
	}
}

func TestResolve_Roots(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	ctx := context.Background()

	drive, err := r.Resolve(ctx, types.AllDrive(), ResolveOptions{})
	if err != nil || drive[0].RelPath != "" || drive[0].Entry.ID != mocks.DriveRootID {
		t.Errorf("AllDrive = %+v, %v", drive, err)
	}
	photos, err := r.Resolve(ctx, types.AllPhotos(), ResolveOptions{})
	if err != nil || photos[0].RelPath != "Photos" || photos[0].Entry.ID != mocks.PhotosRootID {
		t.Errorf("AllPhotos = %+v, %v", photos, err)
	}
}

func TestResolve_IsIdempotentAndCached(t *testing.T) {
	m := newTree()
	r := NewPathResolver(m, time.Minute, nil)
	ctx := context.Background()
	opts := ResolveOptions{UseCache: true}

	a, err := r.Resolve(ctx, types.ByPath("Docs/Reports/Q3.pdf"), opts)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	calls := m.Calls("list")
	b, err := r.Resolve(ctx, types.ByPath("Docs/Reports/Q3.pdf"), opts)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if a[0] != b[0] {
		t.Errorf("results differ: %+v vs %+v", a[0], b[0])
	}
	if m.Calls("list") != calls {
		t.Errorf("cached resolve listed again")
	}

	r.ClearCache()
	if _, err := r.Resolve(ctx, types.ByPath("Docs/Reports/Q3.pdf"), opts); err != nil {
		t.Fatal(err)
	}
	if m.Calls("list") == calls {
		t.Error("ClearCache did not force a fresh walk")
	}
}

func TestResolve_SharedListingCache(t *testing.T) {
	m := newTree()
	r := NewPathResolver(session.NewCache(m), 0, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, types.ByPath("Docs/Reports"), ResolveOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.Calls("list"); got != 2 {
		t.Errorf("list calls = %d, want 2 (root, Docs)", got)
	}
}

func TestResolve_AuthExpired(t *testing.T) {
	m := newTree()
	m.ListErr[mocks.DriveRootID] = session.ErrAuthExpired
	r := NewPathResolver(m, 0, nil)

	_, err := r.Resolve(context.Background(), types.ByPath("Docs"), ResolveOptions{})
	if !utils.HasCode(err, utils.ErrCodeAuthExpired) {
		t.Fatalf("error = %v, want AUTH_EXPIRED", err)
	}
	if !errors.Is(err, session.ErrAuthExpired) {
		t.Error("error does not unwrap to ErrAuthExpired")
	}
}

func TestResolveAll_DefaultsAndDedup(t *testing.T) {
	r := NewPathResolver(newTree(), 0, nil)
	ctx := context.Background()

	roots, err := r.ResolveAll(ctx, nil, ResolveOptions{})
	if err != nil || len(roots) != 1 || roots[0].Entry.ID != mocks.DriveRootID {
		t.Fatalf("ResolveAll(nil) = %+v, %v", roots, err)
	}

	roots, err = r.ResolveAll(ctx, []types.Selector{types.ByName("Cars"), types.ByID("alb-cars"), types.ByPath("Docs")}, ResolveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 2 {
		t.Errorf("got %d roots, want 2", len(roots))
	}
}
