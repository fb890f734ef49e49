// Package drivesession mirrors a Google Drive through the Drive v3 API.
// Drive has no photo library, so the photos tree is reported as absent.
package drivesession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/dl-alexandre/icdl/internal/errors"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	folderMimeType    = "application/vnd.google-apps.folder"
	workspacePrefix   = "application/vnd.google-apps."
	resourceKeyHeader = "X-Goog-Drive-Resource-Keys"
	listFields        = "nextPageToken, files(id, name, mimeType, size, md5Checksum, modifiedTime, resourceKey)"
	pageSize          = 1000
)

// Session implements session.Session over the Drive v3 API
type Session struct {
	service *drive.Service
	keys    *resourceKeys
	logger  logging.Logger
}

var _ session.Session = (*Session)(nil)

// New wraps an already authenticated Drive service
func New(service *drive.Service, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Session{service: service, keys: newResourceKeys(), logger: logger}
}

// NewWithClient builds the Drive service from an authorized HTTP client.
// endpoint overrides the API base URL when non-empty.
func NewWithClient(ctx context.Context, client *http.Client, endpoint string, logger logging.Logger) (*Session, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return New(service, logger), nil
}

func (s *Session) DriveRoot(ctx context.Context) (types.RemoteEntry, error) {
	file, err := s.service.Files.Get("root").
		Fields("id, name, mimeType").
		Context(ctx).
		Do()
	if err != nil {
		return types.RemoteEntry{}, apperrors.FromGoogleAPI("drive-root", err)
	}
	return types.RemoteEntry{ID: file.Id, Name: file.Name, Kind: types.KindFolder}, nil
}

func (s *Session) PhotosRoot(ctx context.Context) (types.RemoteEntry, error) {
	return types.RemoteEntry{}, fmt.Errorf("%w: the drive backend has no photo library", session.ErrNotFound)
}

func (s *Session) ResolveAlbum(ctx context.Context, nameOrID string) (types.RemoteEntry, error) {
	return types.RemoteEntry{}, fmt.Errorf("%w: album %q (the drive backend has no photo library)", session.ErrNotFound, nameOrID)
}

// ListChildren lists non-trashed children of a folder ordered by name.
// Workspace documents and shortcuts have no downloadable bytes and are
// left out.
func (s *Session) ListChildren(ctx context.Context, entryID string) ([]types.RemoteEntry, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(entryID))
	call := s.service.Files.List().
		Q(query).
		Fields(listFields).
		OrderBy("name").
		PageSize(pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)
	if h := s.keys.header(entryID); h != "" {
		call.Header().Set(resourceKeyHeader, h)
	}

	var entries []types.RemoteEntry
	skipped := 0
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			entry, ok := s.toEntry(f)
			if !ok {
				skipped++
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.FromGoogleAPI("list", err)
	}
	if skipped > 0 {
		s.logger.Debug("skipped entries without binary content",
			logging.F("folder", entryID),
			logging.F("count", skipped),
		)
	}
	return entries, nil
}

func (s *Session) toEntry(f *drive.File) (types.RemoteEntry, bool) {
	s.keys.add(f.Id, f.ResourceKey)

	entry := types.RemoteEntry{ID: f.Id, Name: f.Name}
	switch {
	case f.MimeType == folderMimeType:
		entry.Kind = types.KindFolder
	case strings.HasPrefix(f.MimeType, workspacePrefix):
		return types.RemoteEntry{}, false
	default:
		entry.Kind = types.KindFile
		entry.Size = f.Size
		entry.ContentHash = strings.ToLower(f.Md5Checksum)
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			entry.ModifiedTime = t
		}
	}
	return entry, true
}

func (s *Session) FetchFull(ctx context.Context, entryID string) (io.ReadCloser, error) {
	resp, err := s.download(ctx, entryID, "")
	if err != nil {
		return nil, apperrors.FromGoogleAPI("fetch", err)
	}
	return resp.Body, nil
}

// FetchRange asks for bytes=offset-. Drive answers 200 with the whole file
// when it ignores the range, which is reported as ErrRangeUnsupported.
func (s *Session) FetchRange(ctx context.Context, entryID string, offset int64) (io.ReadCloser, error) {
	resp, err := s.download(ctx, entryID, fmt.Sprintf("bytes=%d-", offset))
	if err != nil {
		mapped := apperrors.FromGoogleAPI("fetch-range", err)
		if isStatus(mapped, http.StatusRequestedRangeNotSatisfiable) {
			return nil, fmt.Errorf("%w: offset %d beyond end of %s", session.ErrRangeUnsupported, offset, entryID)
		}
		return nil, mapped
	}
	if resp.StatusCode != http.StatusPartialContent {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: drive returned status %d for %s", session.ErrRangeUnsupported, resp.StatusCode, entryID)
	}
	return resp.Body, nil
}

func (s *Session) download(ctx context.Context, entryID, rangeHeader string) (*http.Response, error) {
	call := s.service.Files.Get(entryID).SupportsAllDrives(true).Context(ctx)
	if rangeHeader != "" {
		call.Header().Set("Range", rangeHeader)
	}
	if h := s.keys.header(entryID); h != "" {
		call.Header().Set(resourceKeyHeader, h)
	}
	return call.Download()
}

func isStatus(err error, code int) bool {
	var statusErr *session.StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}

// escapeQuery escapes a value for use inside a single-quoted Drive query
func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
