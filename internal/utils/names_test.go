package utils

import (
	"reflect"
	"testing"

	"github.com/dl-alexandre/icdl/internal/types"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name, id, want string
	}{
		{"IMG_0001.JPG", "a1", "IMG_0001.JPG"},
		{"a/b", "x", "a_b"},
		{`back\slash`, "x", "back_slash"},
		{"tab\there", "x", "tab_here"},
		{"nul\x00byte", "x", "nul_byte"},
		{"", "AbC123", "AbC123.bin"},
		{"   ", "id9", "id9.bin"},
		{".", "x", "_"},
		{"..", "x", "__"},
		{"Résumé 2024.pdf", "x", "Résumé 2024.pdf"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.name, tt.id); got != tt.want {
			t.Errorf("SanitizeName(%q, %q) = %q, want %q", tt.name, tt.id, got, tt.want)
		}
	}
}

func TestNormalizeRemotePath(t *testing.T) {
	tests := map[string]string{
		"/Docs/Reports/":   "Docs/Reports",
		"Docs//Reports":    "Docs/Reports",
		"/":                "",
		"":                 "",
		"Docs/Q3.pdf":      "Docs/Q3.pdf",
		"///a///b///c.txt": "a/b/c.txt",
	}
	for in, want := range tests {
		if got := NormalizeRemotePath(in); got != want {
			t.Errorf("NormalizeRemotePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitExt(t *testing.T) {
	tests := []struct{ in, base, ext string }{
		{"A.jpg", "A", ".jpg"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{".bashrc", ".bashrc", ""},
		{"README", "README", ""},
	}
	for _, tt := range tests {
		base, ext := SplitExt(tt.in)
		if base != tt.base || ext != tt.ext {
			t.Errorf("SplitExt(%q) = %q, %q; want %q, %q", tt.in, base, ext, tt.base, tt.ext)
		}
	}
}

func TestJoinRel(t *testing.T) {
	if got := JoinRel("", "Photos", "", "Cars"); got != "Photos/Cars" {
		t.Errorf("JoinRel = %q", got)
	}
	if got := JoinRel("", ""); got != "" {
		t.Errorf("JoinRel empty = %q", got)
	}
}

func TestAssignNames(t *testing.T) {
	children := []types.RemoteEntry{
		{ID: "1", Name: "Trip", Kind: types.KindAlbum},
		{ID: "2", Name: "a.jpg", Kind: types.KindFile},
		{ID: "3", Name: "Trip", Kind: types.KindAlbum},
		{ID: "4", Name: "a.jpg", Kind: types.KindFile},
		{ID: "5", Name: "a-1.jpg", Kind: types.KindFile},
		{ID: "6", Name: "v1.0", Kind: types.KindFolder},
		{ID: "7", Name: "v1.0", Kind: types.KindFolder},
	}
	want := []string{"Trip", "a.jpg", "Trip-1", "a-2.jpg", "a-1.jpg", "v1.0", "v1.0-1"}
	if got := AssignNames(children); !reflect.DeepEqual(got, want) {
		t.Errorf("AssignNames() = %v, want %v", got, want)
	}
}
