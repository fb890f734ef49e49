package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/icdl/internal/config"
	"github.com/dl-alexandre/icdl/internal/journal"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/session"
	testhelpers "github.com/dl-alexandre/icdl/internal/testing"
	"github.com/dl-alexandre/icdl/internal/testing/mocks"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       int
		wantStderr bool
	}{
		{"nil", nil, utils.ExitSuccess, false},
		{"reported", &exitError{code: utils.ExitAmbiguousPath, err: errors.New("x"), reported: true}, utils.ExitAmbiguousPath, false},
		{"unreported", exitWith(utils.ExitInvalidArgument, errors.New("bad flag")), utils.ExitInvalidArgument, true},
		{"plain error", errors.New("boom"), utils.ExitUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if got := exitCode(tt.err, &stderr); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
			if (stderr.Len() > 0) != tt.wantStderr {
				t.Errorf("stderr = %q", stderr.String())
			}
		})
	}
}

func TestToCLIError(t *testing.T) {
	if got := toCLIError(session.ErrNotFound).Code; got != utils.ErrCodeFileNotFound {
		t.Errorf("code = %s, want FILE_NOT_FOUND", got)
	}
	ambiguous := utils.NewCLIError(utils.ErrCodeAmbiguousPath, "two matches").Err()
	if got := toCLIError(ambiguous).Code; got != utils.ErrCodeAmbiguousPath {
		t.Errorf("code = %s, want AMBIGUOUS_PATH", got)
	}
}

func TestFail_WritesErrorAndMapsExitCode(t *testing.T) {
	out, _, errOut := newBufferedOutput(types.OutputFormatTable)

	err := fail(out, "download", utils.NewCLIError(utils.ErrCodeAmbiguousPath, "two folders named Docs").Err())

	var ee *exitError
	if !errors.As(err, &ee) || ee.code != utils.ExitAmbiguousPath || !ee.reported {
		t.Fatalf("fail() = %#v", err)
	}
	if !strings.Contains(errOut.String(), "AMBIGUOUS_PATH") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestBuildLogConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	lc := buildLogConfig(cfg, types.GlobalFlags{OutputFormat: types.OutputFormatTable})
	if !lc.EnableConsole || lc.Level != logging.INFO || lc.EnableDebug {
		t.Errorf("default log config = %+v", lc)
	}

	lc = buildLogConfig(cfg, types.GlobalFlags{OutputFormat: types.OutputFormatJSON})
	if lc.EnableConsole {
		t.Error("JSON output should keep the console quiet")
	}

	lc = buildLogConfig(cfg, types.GlobalFlags{OutputFormat: types.OutputFormatJSON, Debug: true, LogFile: "/tmp/x.log"})
	if !lc.EnableConsole || !lc.EnableDebug || lc.Level != logging.DEBUG || lc.OutputFile != "/tmp/x.log" {
		t.Errorf("debug log config = %+v", lc)
	}

	lc = buildLogConfig(cfg, types.GlobalFlags{OutputFormat: types.OutputFormatTable, Quiet: true})
	if lc.EnableConsole {
		t.Error("--quiet should disable console logging")
	}
}

func TestListRoot(t *testing.T) {
	ctx := testhelpers.TestContext(t)
	m := mocks.NewMockSession()
	docs := m.AddFolder(mocks.DriveRootID, "f-docs", "Docs")
	m.AddFile(docs.ID, "f-a", "a.txt", []byte("aaa"))
	m.AddFile(docs.ID, "f-b", "b.txt", []byte("b"))
	m.AddFile(mocks.DriveRootID, "f-top", "top.txt", []byte("t"))

	t.Run("folder", func(t *testing.T) {
		entries, err := listRoot(ctx, m, types.ByPath("/Docs"), nil)
		if err != nil {
			t.Fatalf("listRoot() error = %v", err)
		}
		if len(entries) != 2 || entries[0].Name != "a.txt" || entries[1].Name != "b.txt" {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("drive root", func(t *testing.T) {
		entries, err := listRoot(ctx, m, types.ByPath(""), nil)
		if err != nil {
			t.Fatalf("listRoot() error = %v", err)
		}
		if len(entries) != 2 || entries[0].Name != "Docs" || entries[1].Name != "top.txt" {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("single file", func(t *testing.T) {
		entries, err := listRoot(ctx, m, types.ByPath("/Docs/a.txt"), nil)
		if err != nil {
			t.Fatalf("listRoot() error = %v", err)
		}
		if len(entries) != 1 || entries[0].ID != "f-a" {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := listRoot(ctx, m, types.ByPath("/Nope"), nil)
		if !utils.HasCode(err, utils.ErrCodeFileNotFound) {
			t.Errorf("error = %v, want FILE_NOT_FOUND", err)
		}
	})
}

func TestListRoot_PhotosAlbums(t *testing.T) {
	ctx := testhelpers.TestContext(t)
	m := mocks.NewMockSession()
	m.AddAlbum("Summer", "Summer")
	trip := m.AddAlbum("AB12", "Trip")
	m.AddAsset(trip.ID, "p-1", "IMG_1.JPG", []byte("jpg"))
	m.AddAsset(mocks.PhotosRootID, "p-loose", "IMG_9.JPG", []byte("x"))

	entries, err := listRoot(ctx, m, types.AllPhotos(), nil)
	if err != nil {
		t.Fatalf("listRoot() error = %v", err)
	}
	albums := filterKind(entries, types.KindAlbum)
	if len(albums) != 2 {
		t.Fatalf("albums = %+v", albums)
	}
	if got := albumLabel(albums[0]); got != "Summer" {
		t.Errorf("label = %q, want plain title when id equals title", got)
	}
	if got := albumLabel(albums[1]); got != "Trip (id: AB12)" {
		t.Errorf("label = %q", got)
	}
	if assets := filterKind(entries, types.KindAsset); len(assets) != 1 || assets[0].ID != "p-loose" {
		t.Errorf("assets = %+v", assets)
	}

	inAlbum, err := listRoot(ctx, m, types.ByID("AB12"), nil)
	if err != nil {
		t.Fatalf("listRoot(ByID) error = %v", err)
	}
	if len(inAlbum) != 1 || inAlbum[0].Name != "IMG_1.JPG" {
		t.Errorf("album entries = %+v", inAlbum)
	}
}

func TestEntryTable(t *testing.T) {
	list := entryList{
		Path: "/Docs",
		Entries: []types.RemoteEntry{
			{ID: "1", Name: "sub", Kind: types.KindFolder},
			{ID: "2", Name: "a.bin", Kind: types.KindFile, Size: 2048, ModifiedTime: time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC)},
		},
	}
	rows := list.AsTableRenderer().Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][1] != "folder" || rows[0][2] != "-" {
		t.Errorf("folder row = %v", rows[0])
	}
	if rows[1][2] != "2.0 KiB" || rows[1][3] != "2024-05-06 07:08" {
		t.Errorf("file row = %v", rows[1])
	}
	empty := entryList{Path: "/Empty"}.AsTableRenderer()
	if !strings.Contains(empty.EmptyMessage(), "/Empty") {
		t.Errorf("empty message = %q", empty.EmptyMessage())
	}
}

func TestCredentialsFromFlags(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	creds, err := credentialsFromFlags(" tok ", "", time.Hour, nil, now)
	if err != nil {
		t.Fatalf("credentialsFromFlags() error = %v", err)
	}
	if creds.AccessToken != "tok" || creds.Type != types.AuthTypeToken {
		t.Errorf("creds = %+v", creds)
	}
	if !creds.ExpiryDate.Equal(now.Add(time.Hour)) {
		t.Errorf("expiry = %v", creds.ExpiryDate)
	}

	creds, err = credentialsFromFlags("tok", "refresh", 0, []string{"s"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if creds.Type != types.AuthTypeOAuth || !creds.ExpiryDate.IsZero() {
		t.Errorf("oauth creds = %+v", creds)
	}

	if _, err := credentialsFromFlags("  ", "", 0, nil, now); !utils.HasCode(err, utils.ErrCodeInvalidArgument) {
		t.Errorf("empty token error = %v", err)
	}
	if _, err := credentialsFromFlags("tok", "", -time.Minute, nil, now); !utils.HasCode(err, utils.ErrCodeInvalidArgument) {
		t.Errorf("negative expiry error = %v", err)
	}
}

func TestConfigView_MasksSecret(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OAuthClientSecret = "s3cret"

	view := configView(cfg)
	if view["oauthClientSecret"] != "********" {
		t.Errorf("secret shown as %v", view["oauthClientSecret"])
	}
	for _, key := range config.Keys() {
		if _, ok := view[key]; !ok {
			t.Errorf("config view misses key %s", key)
		}
	}
}

func TestRunState(t *testing.T) {
	finished := time.Now()
	tests := []struct {
		run  journal.Run
		want string
	}{
		{journal.Run{}, "running"},
		{journal.Run{FinishedAt: &finished}, "ok"},
		{journal.Run{FinishedAt: &finished, Failed: 2}, "failed"},
		{journal.Run{FinishedAt: &finished, Failed: 2, Interrupted: true}, "interrupted"},
	}
	for _, tt := range tests {
		if got := runState(tt.run); got != tt.want {
			t.Errorf("runState(%+v) = %q, want %q", tt.run, got, tt.want)
		}
	}
}
