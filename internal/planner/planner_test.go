package planner

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/testing/mocks"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
)

func collect(t *testing.T, p *Planner, roots []types.Root, dest string) ([]types.DownloadTask, []error) {
	t.Helper()
	var tasks []types.DownloadTask
	var errs []error
	for task, err := range p.Plan(context.Background(), roots, dest) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, errs
}

func relPaths(tasks []types.DownloadTask) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.RelPath
	}
	return out
}

func driveRoot(m *mocks.MockSession) []types.Root {
	e, _ := m.DriveRoot(context.Background())
	return []types.Root{{Entry: e, RelPath: ""}}
}

func TestPlan_DepthFirstListingOrder(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddFile(mocks.DriveRootID, "f1", "z.txt", []byte("z"))
	m.AddFolder(mocks.DriveRootID, "d1", "Docs")
	m.AddFile("d1", "f2", "b.txt", []byte("bb"))
	m.AddFolder("d1", "d2", "Deep")
	m.AddFile("d2", "f3", "c.txt", []byte("ccc"))
	m.AddFile(mocks.DriveRootID, "f4", "a.txt", []byte("a"))

	p, err := NewPlanner(m, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	tasks, errs := collect(t, p, driveRoot(m), dest)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := []string{"z.txt", "Docs/b.txt", "Docs/Deep/c.txt", "a.txt"}
	if got := relPaths(tasks); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if tasks[2].LocalPath != filepath.Join(dest, "Docs", "Deep", "c.txt") {
		t.Errorf("LocalPath = %s", tasks[2].LocalPath)
	}
	if tasks[2].ExpectedSize != 3 {
		t.Errorf("ExpectedSize = %d", tasks[2].ExpectedSize)
	}
}

func TestPlan_DuplicateNamesAreSuffixed(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddAlbum("alb", "Cars")
	m.AddAsset("alb", "a1", "A.jpg", []byte("1"))
	m.AddAsset("alb", "a2", "A.jpg", []byte("2"))
	m.AddAsset("alb", "a3", "B.jpg", []byte("3"))

	p, _ := NewPlanner(m, Options{}, nil)
	album, _ := m.ResolveAlbum(context.Background(), "alb")
	roots := []types.Root{{Entry: album, RelPath: "Photos/Cars"}}

	tasks, _ := collect(t, p, roots, t.TempDir())
	want := []string{"Photos/Cars/A.jpg", "Photos/Cars/A-1.jpg", "Photos/Cars/B.jpg"}
	if got := relPaths(tasks); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if tasks[1].Entry.ID != "a2" {
		t.Errorf("suffix assigned to %s, want a2", tasks[1].Entry.ID)
	}
}

func TestPlan_IsDeterministicAcrossRuns(t *testing.T) {
	m := mocks.NewMockSession()
	for _, id := range []string{"x1", "x2", "x3", "x4"} {
		m.AddFile(mocks.DriveRootID, id, "same.txt", []byte(id))
	}
	m.AddFile(mocks.DriveRootID, "x5", "same-1.txt", []byte("real"))

	p, _ := NewPlanner(m, Options{}, nil)
	dest := t.TempDir()
	first, _ := collect(t, p, driveRoot(m), dest)
	again, _ := collect(t, p, driveRoot(m), dest)
	if !reflect.DeepEqual(first, again) {
		t.Fatalf("plans differ:\n%v\n%v", relPaths(first), relPaths(again))
	}

	want := []string{"same.txt", "same-2.txt", "same-3.txt", "same-4.txt", "same-1.txt"}
	if got := relPaths(first); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
}

func TestPlan_ContainersAndFilesShareNamespace(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddFolder(mocks.DriveRootID, "d1", "notes")
	m.AddFile("d1", "f1", "in.txt", []byte("i"))
	m.AddFile(mocks.DriveRootID, "f2", "notes", []byte("n"))

	p, _ := NewPlanner(m, Options{}, nil)
	tasks, _ := collect(t, p, driveRoot(m), t.TempDir())
	want := []string{"notes/in.txt", "notes-1"}
	if got := relPaths(tasks); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
}

func TestPlan_SanitizesNames(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddAlbum("alb", "Misc")
	m.AddAsset("alb", "AbC", "", []byte("x"))
	m.AddAsset("alb", "sl", "a/b.jpg", []byte("y"))
	m.AddAsset("alb", "up", "..", []byte("z"))

	p, _ := NewPlanner(m, Options{}, nil)
	album, _ := m.ResolveAlbum(context.Background(), "alb")
	tasks, _ := collect(t, p, []types.Root{{Entry: album, RelPath: "Photos/Misc"}}, t.TempDir())

	want := []string{"Photos/Misc/AbC.bin", "Photos/Misc/a_b.jpg", "Photos/Misc/__"}
	if got := relPaths(tasks); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
}

func TestPlan_ListsEachContainerOnce(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddFolder(mocks.DriveRootID, "d1", "Docs")
	m.AddFolder("d1", "d2", "Sub")
	m.AddFile("d2", "f1", "a.txt", []byte("a"))

	cache := session.NewCache(m)
	p, _ := NewPlanner(cache, Options{}, nil)
	dest := t.TempDir()

	collect(t, p, driveRoot(m), dest)
	collect(t, p, driveRoot(m), dest)
	if got := m.Calls("list"); got != 3 {
		t.Errorf("list calls = %d, want 3", got)
	}
}

func TestPlan_ListingErrorSkipsSubtree(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddFolder(mocks.DriveRootID, "bad", "Broken")
	m.AddFile("bad", "f1", "lost.txt", []byte("x"))
	m.AddFile(mocks.DriveRootID, "f2", "ok.txt", []byte("ok"))
	m.ListErr["bad"] = &session.StatusError{Code: 500, Op: "list"}

	p, _ := NewPlanner(m, Options{}, nil)
	tasks, errs := collect(t, p, driveRoot(m), t.TempDir())

	if got := relPaths(tasks); !reflect.DeepEqual(got, []string{"ok.txt"}) {
		t.Errorf("tasks = %v", got)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	var planErr *PlanError
	if !errors.As(errs[0], &planErr) || planErr.RelPath != "Broken" {
		t.Fatalf("error = %v, want PlanError for Broken", errs[0])
	}
	if !utils.HasCode(errs[0], utils.ErrCodeNetworkError) {
		t.Errorf("code = %s", utils.ErrorCode(errs[0]))
	}
}

func TestPlan_AuthErrorIsDetectable(t *testing.T) {
	m := mocks.NewMockSession()
	m.ListErr[mocks.DriveRootID] = session.ErrAuthExpired

	p, _ := NewPlanner(m, Options{}, nil)
	_, errs := collect(t, p, driveRoot(m), t.TempDir())
	if len(errs) != 1 || !errors.Is(errs[0], session.ErrAuthExpired) {
		t.Fatalf("errs = %v", errs)
	}
}

func TestPlan_ExcludeAppliesAfterNaming(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddFile(mocks.DriveRootID, "f1", "A.jpg", []byte("1"))
	m.AddFile(mocks.DriveRootID, "f2", "A.jpg", []byte("2"))
	m.AddFile(mocks.DriveRootID, "f3", "notes.tmp", []byte("3"))
	m.AddFolder(mocks.DriveRootID, "d1", "cache")
	m.AddFile("d1", "f4", "x.bin", []byte("4"))

	p, err := NewPlanner(m, Options{Exclude: []string{"A.jpg", "*.tmp", "cache/"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	tasks, _ := collect(t, p, driveRoot(m), t.TempDir())
	if got := relPaths(tasks); !reflect.DeepEqual(got, []string{"A-1.jpg"}) {
		t.Fatalf("tasks = %v, want [A-1.jpg]", got)
	}
	if m.Calls("list") != 1 {
		t.Errorf("excluded folder was listed")
	}
}

func TestPlan_BadExcludePattern(t *testing.T) {
	_, err := NewPlanner(mocks.NewMockSession(), Options{Exclude: []string{"[bad"}}, nil)
	if !utils.HasCode(err, utils.ErrCodeInvalidArgument) {
		t.Fatalf("error = %v", err)
	}
}

func TestPlan_DuplicateRootsProduceOneTask(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddFolder(mocks.DriveRootID, "d1", "Docs")
	m.AddFile("d1", "f1", "a.txt", []byte("a"))
	docs := types.RemoteEntry{ID: "d1", Name: "Docs", Kind: types.KindFolder}

	p, _ := NewPlanner(m, Options{}, nil)
	roots := append(driveRoot(m), types.Root{Entry: docs, RelPath: "Docs"})
	tasks, _ := collect(t, p, roots, t.TempDir())
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
}

func TestPlan_CrossRootCollisionGetsSuffix(t *testing.T) {
	m := mocks.NewMockSession()
	photos := m.AddFolder(mocks.DriveRootID, "d-photos", "Photos")
	m.AddFolder(photos.ID, "d-cars", "Cars")
	m.AddFile("d-cars", "f1", "x.jpg", []byte("drive"))
	m.AddAlbum("alb", "Cars")
	m.AddAsset("alb", "a1", "x.jpg", []byte("album"))
	photosRoot, _ := m.PhotosRoot(context.Background())

	p, _ := NewPlanner(m, Options{}, nil)
	roots := append(driveRoot(m), types.Root{Entry: photosRoot, RelPath: "Photos"})
	dest := t.TempDir()

	for run := 0; run < 2; run++ {
		tasks, errs := collect(t, p, roots, dest)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		want := []string{"Photos/Cars/x.jpg", "Photos/Cars/x-1.jpg"}
		if got := relPaths(tasks); !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: tasks = %v, want %v", run, got, want)
		}
		if tasks[0].Entry.ID != "f1" || tasks[1].Entry.ID != "a1" {
			t.Errorf("run %d: ids = %s, %s", run, tasks[0].Entry.ID, tasks[1].Entry.ID)
		}
		if tasks[0].LocalPath == tasks[1].LocalPath {
			t.Errorf("run %d: both tasks target %s", run, tasks[0].LocalPath)
		}
	}
}

func TestPlan_RootPathCollidesWithSuffixedSibling(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddFile(mocks.DriveRootID, "f1", "a.txt", []byte("1"))
	m.AddFile(mocks.DriveRootID, "f2", "a.txt", []byte("2"))
	other := types.RemoteEntry{ID: "f3", Name: "a-1.txt", Kind: types.KindFile, Size: 1}

	p, _ := NewPlanner(m, Options{}, nil)
	roots := append(driveRoot(m), types.Root{Entry: other, RelPath: "a-1.txt"})
	tasks, _ := collect(t, p, roots, t.TempDir())

	want := []string{"a.txt", "a-1.txt", "a-2.txt"}
	if got := relPaths(tasks); !reflect.DeepEqual(got, want) {
		t.Fatalf("tasks = %v, want %v", got, want)
	}
}

func TestPlan_FileRoot(t *testing.T) {
	m := mocks.NewMockSession()
	f := m.AddFile(mocks.DriveRootID, "f1", "report.pdf", []byte("pdf"))

	p, _ := NewPlanner(m, Options{}, nil)
	dest := t.TempDir()
	tasks, _ := collect(t, p, []types.Root{{Entry: f, RelPath: "report.pdf"}}, dest)
	if len(tasks) != 1 || tasks[0].LocalPath != filepath.Join(dest, "report.pdf") {
		t.Fatalf("tasks = %+v", tasks)
	}
	if m.Calls("list") != 0 {
		t.Error("file root should not be listed")
	}
}

func TestPlan_StopsWhenConsumerStops(t *testing.T) {
	m := mocks.NewMockSession()
	m.AddFolder(mocks.DriveRootID, "d1", "A")
	m.AddFile("d1", "f1", "1", []byte("1"))
	m.AddFolder(mocks.DriveRootID, "d2", "B")
	m.AddFile("d2", "f2", "2", []byte("2"))

	p, _ := NewPlanner(m, Options{}, nil)
	for range p.Plan(context.Background(), driveRoot(m), t.TempDir()) {
		break
	}
	if got := m.Calls("list"); got != 2 {
		t.Errorf("list calls = %d, want 2 (lazy)", got)
	}
}
