// Package resolver maps user selectors onto remote root entries.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/dl-alexandre/icdl/internal/errors"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
)

// PathResolver resolves selectors to roots. Listings go through the session
// it is given, which is normally the per-run session.Cache shared with the
// planner.
type PathResolver struct {
	session  session.Session
	logger   logging.Logger
	cache    *rootCache
	cacheTTL time.Duration
}

type rootCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	roots     []types.Root
	timestamp time.Time
}

// ResolveOptions configures resolution
type ResolveOptions struct {
	// DuplicatePolicy is utils.DuplicatePolicyFirst (default) or
	// utils.DuplicatePolicyStrict.
	DuplicatePolicy string
	UseCache        bool
}

// NewPathResolver creates a new resolver. A cacheTTL of zero disables the
// selector cache.
func NewPathResolver(s session.Session, cacheTTL time.Duration, logger logging.Logger) *PathResolver {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &PathResolver{
		session:  s,
		logger:   logger,
		cacheTTL: cacheTTL,
		cache: &rootCache{
			entries: make(map[string]cacheEntry),
		},
	}
}

// Resolve maps one selector to its roots
func (r *PathResolver) Resolve(ctx context.Context, sel types.Selector, opts ResolveOptions) ([]types.Root, error) {
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = utils.DuplicatePolicyFirst
	}
	if opts.DuplicatePolicy != utils.DuplicatePolicyFirst && opts.DuplicatePolicy != utils.DuplicatePolicyStrict {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Unknown duplicate policy: %s", opts.DuplicatePolicy)).
			WithContext("allowed", []string{utils.DuplicatePolicyFirst, utils.DuplicatePolicyStrict}).
			Err()
	}

	key := makeCacheKey(sel, opts)
	if opts.UseCache {
		if roots, ok := r.checkCache(key); ok {
			r.logger.Debug("Selector resolved from cache", logging.F("selector", sel.String()))
			return roots, nil
		}
	}

	var roots []types.Root
	var err error
	switch sel.Kind {
	case types.SelectByPath:
		roots, err = r.resolvePath(ctx, sel.Value, opts)
	case types.SelectByName:
		roots, err = r.resolveAlbumName(ctx, sel.Value, opts)
	case types.SelectByID:
		roots, err = r.resolveAlbumID(ctx, sel.Value)
	case types.SelectAllDrive:
		roots, err = r.resolveDriveRoot(ctx)
	case types.SelectAllPhotos:
		roots, err = r.resolvePhotosRoot(ctx)
	default:
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Unknown selector kind: %d", sel.Kind)).Err()
	}
	if err != nil {
		return nil, err
	}

	if opts.UseCache {
		r.updateCache(key, roots)
	}
	r.logger.Debug("Selector resolved",
		logging.F("selector", sel.String()),
		logging.F("roots", len(roots)),
	)
	return roots, nil
}

// ResolveAll resolves every selector in order. The same root selected
// twice is returned once.
func (r *PathResolver) ResolveAll(ctx context.Context, sels []types.Selector, opts ResolveOptions) ([]types.Root, error) {
	if len(sels) == 0 {
		sels = []types.Selector{types.AllDrive()}
	}
	seen := make(map[string]bool)
	var out []types.Root
	for _, sel := range sels {
		roots, err := r.Resolve(ctx, sel, opts)
		if err != nil {
			return nil, err
		}
		for _, root := range roots {
			k := root.Entry.ID + "\x00" + root.RelPath
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, root)
		}
	}
	return out, nil
}

func (r *PathResolver) resolveDriveRoot(ctx context.Context) ([]types.Root, error) {
	root, err := r.session.DriveRoot(ctx)
	if err != nil {
		return nil, apperrors.Classify(err, map[string]interface{}{"selector": "drive:*"})
	}
	return []types.Root{{Entry: root, RelPath: ""}}, nil
}

func (r *PathResolver) resolvePhotosRoot(ctx context.Context) ([]types.Root, error) {
	root, err := r.session.PhotosRoot(ctx)
	if err != nil {
		return nil, apperrors.Classify(err, map[string]interface{}{"selector": "photos:*"})
	}
	return []types.Root{{Entry: root, RelPath: utils.PhotosDirName}}, nil
}

// resolvePath walks the drive tree one segment at a time. Names match
// case-sensitively.
func (r *PathResolver) resolvePath(ctx context.Context, path string, opts ResolveOptions) ([]types.Root, error) {
	path = utils.NormalizeRemotePath(path)
	if path == "" {
		return r.resolveDriveRoot(ctx)
	}

	current, err := r.session.DriveRoot(ctx)
	if err != nil {
		return nil, apperrors.Classify(err, map[string]interface{}{"path": path})
	}

	segments := strings.Split(path, "/")
	relParts := make([]string, 0, len(segments))
	for i, segment := range segments {
		if !current.IsContainer() {
			return nil, utils.NewCLIError(utils.ErrCodeFileNotFound,
				fmt.Sprintf("Path segment not found: %s (%s is not a folder)", segment, strings.Join(segments[:i], "/"))).
				WithContext("path", path).
				WithContext("segment", segment).
				Err()
		}

		children, err := r.session.ListChildren(ctx, current.ID)
		if err != nil {
			return nil, apperrors.Classify(err, map[string]interface{}{
				"path":    path,
				"segment": segment,
			})
		}

		matches := matchName(children, segment, nil)
		if len(matches) == 0 {
			return nil, utils.NewCLIError(utils.ErrCodeFileNotFound,
				fmt.Sprintf("Path segment not found: %s (at %s)", segment, strings.Join(segments[:i+1], "/"))).
				WithContext("path", path).
				WithContext("segment", segment).
				Err()
		}
		if len(matches) > 1 && opts.DuplicatePolicy == utils.DuplicatePolicyStrict {
			return nil, ambiguous(segment, path, matches)
		}

		current = matches[0]
		relParts = append(relParts, utils.SanitizeName(current.Name, current.ID))
	}

	return []types.Root{{Entry: current, RelPath: strings.Join(relParts, "/")}}, nil
}

func (r *PathResolver) resolveAlbumName(ctx context.Context, name string, opts ResolveOptions) ([]types.Root, error) {
	albums, err := r.listAlbums(ctx)
	if err != nil {
		return nil, apperrors.Classify(err, map[string]interface{}{"album": name})
	}

	isAlbum := func(e types.RemoteEntry) bool { return e.Kind == types.KindAlbum }
	matches := matchName(albums, name, isAlbum)
	if len(matches) == 0 {
		return nil, utils.NewCLIError(utils.ErrCodeFileNotFound,
			fmt.Sprintf("Album not found: %s", name)).
			WithContext("album", name).
			WithContext("suggestedAction", "run 'icdl photos albums' to list album names and IDs").
			Err()
	}
	if len(matches) > 1 && opts.DuplicatePolicy == utils.DuplicatePolicyStrict {
		return nil, ambiguous(name, name, matches)
	}

	album := matches[0]
	return []types.Root{{
		Entry:   album,
		RelPath: utils.JoinRel(utils.PhotosDirName, utils.SanitizeName(album.Name, album.ID)),
	}}, nil
}

// resolveAlbumID bypasses name lookup. The directory is the one a whole
// photos run gives the album, so a duplicate display name gets the same
// "-N" suffix in both cases.
func (r *PathResolver) resolveAlbumID(ctx context.Context, id string) ([]types.Root, error) {
	album, err := r.session.ResolveAlbum(ctx, id)
	if err != nil {
		return nil, apperrors.Classify(err, map[string]interface{}{"albumId": id})
	}
	if !album.IsContainer() {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Entry %s is a %s, not an album", id, album.Kind)).
			WithContext("albumId", id).
			Err()
	}

	albums, err := r.listAlbums(ctx)
	if err != nil {
		return nil, apperrors.Classify(err, map[string]interface{}{"albumId": id})
	}
	dirName := utils.SanitizeName(album.Name, album.ID)
	for i, name := range utils.AssignNames(albums) {
		if albums[i].ID == album.ID {
			dirName = name
			break
		}
	}

	return []types.Root{{Entry: album, RelPath: utils.JoinRel(utils.PhotosDirName, dirName)}}, nil
}

func (r *PathResolver) listAlbums(ctx context.Context) ([]types.RemoteEntry, error) {
	root, err := r.session.PhotosRoot(ctx)
	if err != nil {
		return nil, err
	}
	return r.session.ListChildren(ctx, root.ID)
}

// matchName returns entries named name in listing order
func matchName(entries []types.RemoteEntry, name string, keep func(types.RemoteEntry) bool) []types.RemoteEntry {
	var out []types.RemoteEntry
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		if keep != nil && !keep(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func ambiguous(name, path string, matches []types.RemoteEntry) error {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return utils.NewCLIError(utils.ErrCodeAmbiguousPath,
		fmt.Sprintf("Ambiguous path: multiple matches for '%s'", name)).
		WithContext("path", path).
		WithContext("matchCount", len(matches)).
		WithContext("matchIds", ids).
		WithContext("suggestedAction", "select by ID or use --duplicates first").
		Err()
}

func (r *PathResolver) checkCache(key string) ([]types.Root, bool) {
	if r.cacheTTL <= 0 {
		return nil, false
	}
	r.cache.mu.RLock()
	defer r.cache.mu.RUnlock()

	entry, ok := r.cache.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.timestamp) > r.cacheTTL {
		return nil, false
	}
	return append([]types.Root(nil), entry.roots...), true
}

func (r *PathResolver) updateCache(key string, roots []types.Root) {
	if r.cacheTTL <= 0 {
		return
	}
	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()

	r.cache.entries[key] = cacheEntry{
		roots:     append([]types.Root(nil), roots...),
		timestamp: time.Now(),
	}
}

// ClearCache removes all cached entries
func (r *PathResolver) ClearCache() {
	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()

	r.cache.entries = make(map[string]cacheEntry)
}

func makeCacheKey(sel types.Selector, opts ResolveOptions) string {
	return fmt.Sprintf("%s:%s", opts.DuplicatePolicy, sel.String())
}
