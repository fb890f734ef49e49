// Package downloader executes one download task with byte-exact resume.
package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/dl-alexandre/icdl/internal/errors"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/google/uuid"
)

// ProgressSink receives one event per chunk written
type ProgressSink interface {
	OnEvent(taskID string, bytesDelta, totalExpected int64)
}

// ResumeSink is optionally implemented by sinks that want to know how much
// of a task was already on disk when a range request was accepted
type ResumeSink interface {
	OnResume(taskID string, offset, totalExpected int64)
}

type nopSink struct{}

func (nopSink) OnEvent(string, int64, int64) {}

// Options controls transfer behaviour
type Options struct {
	// Resume appends to a smaller local file with a range request instead
	// of fetching it again.
	Resume bool
	// Verify checks fetched content against the remote MD5 when known
	Verify bool
	// PreserveModTime sets the local mtime to the remote modified time
	PreserveModTime bool
	// CheckFreeSpace refuses transfers that would fill the volume
	CheckFreeSpace bool
}

// Downloader places remote entries at their local paths
type Downloader struct {
	session   session.Session
	opts      Options
	logger    logging.Logger
	freeSpace FreeSpaceFunc
}

// NewDownloader creates a downloader
func NewDownloader(s session.Session, opts Options, logger logging.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	d := &Downloader{session: s, opts: opts, logger: logger}
	if opts.CheckFreeSpace {
		d.freeSpace = VolumeFreeSpace
	}
	return d
}

// WithFreeSpaceFunc replaces the volume probe
func (d *Downloader) WithFreeSpaceFunc(fn FreeSpaceFunc) *Downloader {
	d.freeSpace = fn
	return d
}

var (
	errShortStream = errors.New("stream ended before expected size")
	errLongStream  = errors.New("stream longer than expected size")
)

// Execute runs one task. It never panics on remote or local failures; they
// come back as a Failed result. A task aborted by ctx is Cancelled.
func (d *Downloader) Execute(ctx context.Context, task types.DownloadTask, sink ProgressSink) types.TransferResult {
	if sink == nil {
		sink = nopSink{}
	}
	start := time.Now()
	result := types.TransferResult{Task: task}

	switch task.Entry.Kind {
	case types.KindFile, types.KindAsset:
	case types.KindFolder, types.KindAlbum:
		return d.fail(ctx, result, start, utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s is a %s, not a downloadable entry", task.RelPath, task.Entry.Kind)).Err())
	}

	if err := os.MkdirAll(filepath.Dir(task.LocalPath), 0755); err != nil {
		return d.fail(ctx, result, start, apperrors.TransferIO(task.RelPath, err))
	}

	info, err := os.Stat(task.LocalPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		written, err := d.fetchReplace(ctx, task, sink)
		result.BytesWritten = written
		if err != nil {
			return d.fail(ctx, result, start, err)
		}
		result.Status = types.StatusCompleted

	case err != nil:
		return d.fail(ctx, result, start, apperrors.TransferIO(task.RelPath, err))

	case info.IsDir():
		return d.fail(ctx, result, start, utils.NewCLIError(utils.ErrCodeTransferIO,
			fmt.Sprintf("Local path is a directory: %s", task.LocalPath)).
			WithContext("path", task.RelPath).
			Err())

	case info.Size() == task.ExpectedSize:
		result.Status = types.StatusSkipped
		result.Duration = time.Since(start)
		return result

	case info.Size() < task.ExpectedSize && d.opts.Resume:
		written, fallback, err := d.resume(ctx, task, info.Size(), sink)
		result.BytesWritten = written
		result.RangeFallback = fallback
		if err != nil {
			return d.fail(ctx, result, start, err)
		}
		result.Status = types.StatusResumed

	default:
		// smaller with resume off, or larger than the remote: start over
		written, err := d.fetchReplace(ctx, task, sink)
		result.BytesWritten = written
		if err != nil {
			return d.fail(ctx, result, start, err)
		}
		result.Status = types.StatusResumed
		result.Replaced = true
	}

	d.applyModTime(task)
	result.Duration = time.Since(start)
	return result
}

func (d *Downloader) fail(ctx context.Context, result types.TransferResult, start time.Time, err error) types.TransferResult {
	result.Duration = time.Since(start)
	if ctx.Err() != nil {
		result.Status = types.StatusCancelled
		return result
	}
	result.Status = types.StatusFailed
	result.Err = apperrors.Classify(err, map[string]interface{}{"path": result.Task.RelPath})
	return result
}

// resume appends the missing tail. When the remote refuses ranges it falls
// back to a full fetch that replaces the partial file.
func (d *Downloader) resume(ctx context.Context, task types.DownloadTask, offset int64, sink ProgressSink) (int64, bool, error) {
	remaining := task.ExpectedSize - offset
	if err := d.checkFreeSpace(ctx, filepath.Dir(task.LocalPath), remaining); err != nil {
		return 0, false, err
	}

	body, err := d.session.FetchRange(ctx, task.Entry.ID, offset)
	if errors.Is(err, session.ErrRangeUnsupported) {
		d.logger.Info("Range not supported, fetching whole file",
			logging.F("path", task.RelPath),
			logging.F("offset", offset),
		)
		written, err := d.fetchReplace(ctx, task, sink)
		return written, true, err
	}
	if err != nil {
		return 0, false, err
	}
	defer body.Close()

	if rs, ok := sink.(ResumeSink); ok {
		rs.OnResume(task.ID(), offset, task.ExpectedSize)
	}
	d.logger.Debug("Resuming transfer",
		logging.F("path", task.RelPath),
		logging.F("offset", offset),
		logging.F("size", task.ExpectedSize),
	)

	f, err := os.OpenFile(task.LocalPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, false, apperrors.TransferIO(task.RelPath, err)
	}

	written, copyErr := copyChunks(ctx, f, body, remaining, task.ExpectedSize, task.ID(), sink)
	if errors.Is(copyErr, errLongStream) {
		// the remote changed under us; drop what this attempt appended
		_ = f.Truncate(offset)
	}
	syncErr := f.Sync()
	closeErr := f.Close()
	if copyErr != nil {
		return written, false, apperrors.TransferIO(task.RelPath, copyErr)
	}
	if syncErr != nil {
		return written, false, apperrors.TransferIO(task.RelPath, syncErr)
	}
	if closeErr != nil {
		return written, false, apperrors.TransferIO(task.RelPath, closeErr)
	}

	if d.shouldVerify(task) {
		sum, err := fileMD5(task.LocalPath)
		if err != nil {
			return written, false, apperrors.TransferIO(task.RelPath, err)
		}
		if err := checkHash(task, sum); err != nil {
			// a corrupt prefix can never be completed by appending
			_ = os.Remove(task.LocalPath)
			return written, false, err
		}
	}
	return written, false, nil
}

// fetchReplace downloads the whole entry into a temp file next to the
// target and renames it into place. Any existing file is replaced only
// after the new content is complete and synced.
func (d *Downloader) fetchReplace(ctx context.Context, task types.DownloadTask, sink ProgressSink) (int64, error) {
	dir := filepath.Dir(task.LocalPath)
	if err := d.checkFreeSpace(ctx, dir, task.ExpectedSize); err != nil {
		return 0, err
	}

	body, err := d.session.FetchFull(ctx, task.Entry.ID)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	tmpPath := TempPath(task.LocalPath)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, apperrors.TransferIO(task.RelPath, err)
	}
	placed := false
	defer func() {
		if !placed {
			_ = os.Remove(tmpPath)
		}
	}()

	var hasher hash.Hash
	var w io.Writer = f
	if d.shouldVerify(task) {
		hasher = md5.New()
		w = io.MultiWriter(f, hasher)
	}

	written, copyErr := copyChunks(ctx, w, body, task.ExpectedSize, task.ExpectedSize, task.ID(), sink)
	syncErr := f.Sync()
	closeErr := f.Close()
	if copyErr != nil {
		return written, apperrors.TransferIO(task.RelPath, copyErr)
	}
	if syncErr != nil {
		return written, apperrors.TransferIO(task.RelPath, syncErr)
	}
	if closeErr != nil {
		return written, apperrors.TransferIO(task.RelPath, closeErr)
	}

	if hasher != nil {
		if err := checkHash(task, hex.EncodeToString(hasher.Sum(nil))); err != nil {
			return written, err
		}
	}

	if err := os.Rename(tmpPath, task.LocalPath); err != nil {
		return written, apperrors.TransferIO(task.RelPath, err)
	}
	placed = true
	return written, nil
}

// copyChunks copies exactly limit bytes in ChunkSize reads, reporting each
// chunk. Fewer bytes is errShortStream; more is errLongStream and nothing
// past limit is written.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, limit, total int64, taskID string, sink ProgressSink) (int64, error) {
	buf := make([]byte, utils.ChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			overflow := written+int64(n) > limit
			if overflow {
				chunk = chunk[:limit-written]
			}
			if len(chunk) > 0 {
				m, err := dst.Write(chunk)
				written += int64(m)
				if m > 0 {
					sink.OnEvent(taskID, int64(m), total)
				}
				if err != nil {
					return written, err
				}
			}
			if overflow {
				return written, errLongStream
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, readErr
		}
	}
	if written < limit {
		return written, fmt.Errorf("%w: got %d of %d bytes", errShortStream, written, limit)
	}
	return written, nil
}

func (d *Downloader) shouldVerify(task types.DownloadTask) bool {
	return d.opts.Verify && task.Entry.ContentHash != ""
}

func checkHash(task types.DownloadTask, got string) error {
	if strings.EqualFold(got, task.Entry.ContentHash) {
		return nil
	}
	return utils.NewCLIError(utils.ErrCodeChecksumMismatch,
		fmt.Sprintf("Checksum mismatch for %s", task.RelPath)).
		WithContext("path", task.RelPath).
		WithContext("expected", task.Entry.ContentHash).
		WithContext("actual", got).
		Err()
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (d *Downloader) applyModTime(task types.DownloadTask) {
	if !d.opts.PreserveModTime || task.Entry.ModifiedTime.IsZero() {
		return
	}
	mt := task.Entry.ModifiedTime
	if err := os.Chtimes(task.LocalPath, mt, mt); err != nil {
		d.logger.Debug("Could not set modification time", logFields(task.RelPath, err)...)
	}
}

// TempPath returns a unique hidden sibling of localPath for a full fetch
func TempPath(localPath string) string {
	dir, name := filepath.Split(localPath)
	return filepath.Join(dir, "."+name+"."+uuid.NewString()+utils.TempFileSuffix)
}

// IsTempFile reports whether name is a leftover in-flight download
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, utils.TempFileSuffix)
}

func logFields(path string, err error) []logging.Field {
	return []logging.Field{logging.F("path", path), logging.F("error", err.Error())}
}
