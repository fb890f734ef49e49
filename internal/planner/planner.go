// Package planner expands resolved roots into a lazy, deterministic
// sequence of download tasks.
package planner

import (
	"context"
	"fmt"
	"iter"
	"path"
	"path/filepath"

	apperrors "github.com/dl-alexandre/icdl/internal/errors"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
)

// PlanError reports a container whose listing failed. Its subtree is
// skipped; planning continues with the next sibling.
type PlanError struct {
	RelPath     string
	ContainerID string
	Err         error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("listing %q: %v", e.RelPath, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// Planner walks remote subtrees depth-first
type Planner struct {
	session session.Session
	exclude *Matcher
	logger  logging.Logger
}

// Options configures a Planner
type Options struct {
	Exclude []string
}

// NewPlanner builds a planner. s should be the run's listing cache so each
// container is listed once per run.
func NewPlanner(s session.Session, opts Options, logger logging.Logger) (*Planner, error) {
	matcher, err := NewMatcher(opts.Exclude)
	if err != nil {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("exclude", opts.Exclude).
			WithCause(err).
			Err()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Planner{session: s, exclude: matcher, logger: logger}, nil
}

// Plan returns the task sequence for roots under destRoot. Iterating it
// again reproduces the same tasks in the same order with the same names.
// Listing failures are yielded as *PlanError values; the consumer decides
// whether to keep going.
func (p *Planner) Plan(ctx context.Context, roots []types.Root, destRoot string) iter.Seq2[types.DownloadTask, error] {
	return func(yield func(types.DownloadTask, error) bool) {
		w := &walk{
			planner:  p,
			ctx:      ctx,
			destRoot: destRoot,
			yield:    yield,
			seen:     make(map[string]string),
		}
		for _, root := range roots {
			if !w.visitRoot(root) {
				return
			}
		}
	}
}

type walk struct {
	planner  *Planner
	ctx      context.Context
	destRoot string
	yield    func(types.DownloadTask, error) bool
	// local path -> entry ID that claimed it
	seen map[string]string
}

func (w *walk) visitRoot(root types.Root) bool {
	rel := root.RelPath
	if !root.Entry.IsContainer() {
		if rel == "" {
			rel = utils.SanitizeName(root.Entry.Name, root.Entry.ID)
		}
		if w.planner.exclude.IsExcluded(rel, false) {
			return true
		}
		return w.emit(root.Entry, rel)
	}
	return w.visitContainer(root.Entry, rel)
}

// visitContainer returns false once the consumer stops iterating
func (w *walk) visitContainer(container types.RemoteEntry, rel string) bool {
	if w.ctx.Err() != nil {
		return false
	}

	children, err := w.planner.session.ListChildren(w.ctx, container.ID)
	if err != nil {
		if w.ctx.Err() != nil {
			return false
		}
		w.planner.logger.Warn("Listing failed, skipping subtree",
			logging.F("path", rel),
			logging.F("containerId", container.ID),
			logging.F("error", err.Error()),
		)
		planErr := &PlanError{
			RelPath:     rel,
			ContainerID: container.ID,
			Err:         apperrors.Classify(err, map[string]interface{}{"path": rel, "containerId": container.ID}),
		}
		return w.yield(types.DownloadTask{}, planErr)
	}

	names := utils.AssignNames(children)
	for i, child := range children {
		childRel := utils.JoinRel(rel, names[i])
		switch child.Kind {
		case types.KindFolder, types.KindAlbum:
			if w.planner.exclude.IsExcluded(childRel, true) {
				continue
			}
			if !w.visitContainer(child, childRel) {
				return false
			}
		case types.KindFile, types.KindAsset:
			if w.planner.exclude.IsExcluded(childRel, false) {
				continue
			}
			if !w.emit(child, childRel) {
				return false
			}
		}
	}
	return true
}

// emit yields one task per distinct entry. The same entry reached through
// overlapping roots is planned once; a different entry landing on a path
// another root already claimed gets the next free "-N" name.
func (w *walk) emit(entry types.RemoteEntry, rel string) bool {
	localPath := w.localPath(rel)
	if owner, taken := w.seen[localPath]; taken {
		if owner == entry.ID {
			w.planner.logger.Debug("Duplicate task skipped", logging.F("path", rel))
			return true
		}
		free := w.freeRel(rel)
		w.planner.logger.Warn("Local path already planned for another entry, renaming",
			logging.F("path", rel),
			logging.F("renamed", free),
			logging.F("id", entry.ID),
		)
		rel, localPath = free, w.localPath(free)
	}
	w.seen[localPath] = entry.ID

	return w.yield(types.DownloadTask{
		Entry:        entry,
		RelPath:      rel,
		LocalPath:    localPath,
		ExpectedSize: entry.Size,
	}, nil)
}

func (w *walk) localPath(rel string) string {
	return filepath.Join(w.destRoot, filepath.FromSlash(rel))
}

// freeRel returns the first "name-N.ext" next to rel that no task holds yet
func (w *walk) freeRel(rel string) string {
	dir, name := path.Split(rel)
	base, ext := utils.SplitExt(name)
	for n := 1; ; n++ {
		candidate := dir + fmt.Sprintf("%s-%d%s", base, n, ext)
		if _, taken := w.seen[w.localPath(candidate)]; !taken {
			return candidate
		}
	}
}
