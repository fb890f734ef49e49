package cli

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/icdl/internal/config"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/resolver"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dustin/go-humanize"
)

// entryList is the result of the listing commands
type entryList struct {
	Path    string              `json:"path"`
	Entries []types.RemoteEntry `json:"entries"`
	// albumLabels switches the name column to "title (id: key)"
	albumLabels bool
}

func (l entryList) AsTableRenderer() types.TableRenderer {
	return entryTable{list: l}
}

type entryTable struct {
	list entryList
}

func (t entryTable) Headers() []string {
	return []string{"Name", "Kind", "Size", "Modified"}
}

func (t entryTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.list.Entries))
	for _, e := range t.list.Entries {
		name := e.Name
		if t.list.albumLabels {
			name = albumLabel(e)
		}
		size := "-"
		if !e.IsContainer() {
			size = humanize.IBytes(uint64(e.Size))
		}
		modified := "-"
		if !e.ModifiedTime.IsZero() {
			modified = e.ModifiedTime.UTC().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{config.Truncate(name, 60), e.Kind.String(), size, modified})
	}
	return rows
}

func (t entryTable) EmptyMessage() string {
	if t.list.Path == "" {
		return "No entries found"
	}
	return fmt.Sprintf("No entries found in %s", t.list.Path)
}

// albumLabel shows the album key next to its title when the two differ
func albumLabel(e types.RemoteEntry) string {
	if e.ID == "" || e.ID == e.Name {
		return e.Name
	}
	return fmt.Sprintf("%s (id: %s)", e.Name, e.ID)
}

// listRoot resolves sel and lists the root it names. A selector naming a
// single file lists just that file.
func listRoot(ctx context.Context, sess session.Session, sel types.Selector, log logging.Logger) ([]types.RemoteEntry, error) {
	r := resolver.NewPathResolver(sess, 0, log)
	roots, err := r.Resolve(ctx, sel, resolver.ResolveOptions{DuplicatePolicy: appConfig.DuplicatePolicy})
	if err != nil {
		return nil, err
	}
	var entries []types.RemoteEntry
	for _, root := range roots {
		if !root.Entry.IsContainer() {
			entries = append(entries, root.Entry)
			continue
		}
		children, err := sess.ListChildren(ctx, root.Entry.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, children...)
	}
	return entries, nil
}

func filterKind(entries []types.RemoteEntry, kind types.EntryKind) []types.RemoteEntry {
	out := make([]types.RemoteEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
