// Package httpsession talks to the REST gateway that fronts a drive/photos
// account. Authentication is carried by the supplied http.Client.
package httpsession

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/dl-alexandre/icdl/internal/errors"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
)

// Options configures a gateway session
type Options struct {
	BaseURL string
	// Client must attach credentials; see auth.Manager.GetHTTPClient
	Client *http.Client
	Logger logging.Logger
}

// Session implements session.Session over HTTP
type Session struct {
	base   *url.URL
	client *http.Client
	logger logging.Logger
}

var _ session.Session = (*Session)(nil)

func New(opts Options) (*Session, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("httpsession: base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpsession: invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpsession: unsupported scheme %q", base.Scheme)
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Session{base: base, client: client, logger: logger}, nil
}

// wireEntry is the gateway's JSON form of a RemoteEntry
type wireEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	Size         int64     `json:"size"`
	MD5          string    `json:"md5,omitempty"`
	ModifiedTime time.Time `json:"modifiedTime,omitempty"`
}

type listResponse struct {
	Entries       []wireEntry `json:"entries"`
	NextPageToken string      `json:"nextPageToken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (w wireEntry) toEntry() (types.RemoteEntry, error) {
	entry := types.RemoteEntry{
		ID:           w.ID,
		Name:         w.Name,
		Size:         w.Size,
		ContentHash:  strings.ToLower(w.MD5),
		ModifiedTime: w.ModifiedTime,
	}
	switch w.Kind {
	case "folder":
		entry.Kind = types.KindFolder
	case "file":
		entry.Kind = types.KindFile
	case "album":
		entry.Kind = types.KindAlbum
	case "asset":
		entry.Kind = types.KindAsset
	default:
		return types.RemoteEntry{}, fmt.Errorf("entry %s has unknown kind %q", w.ID, w.Kind)
	}
	if entry.IsContainer() {
		entry.Size = 0
	}
	return entry, nil
}

func (s *Session) DriveRoot(ctx context.Context) (types.RemoteEntry, error) {
	return s.getEntry(ctx, "drive-root", "/v1/roots/drive")
}

func (s *Session) PhotosRoot(ctx context.Context) (types.RemoteEntry, error) {
	return s.getEntry(ctx, "photos-root", "/v1/roots/photos")
}

func (s *Session) ResolveAlbum(ctx context.Context, nameOrID string) (types.RemoteEntry, error) {
	return s.getEntry(ctx, "resolve-album", "/v1/albums/"+url.PathEscape(nameOrID))
}

// ListChildren follows nextPageToken until the listing is complete
func (s *Session) ListChildren(ctx context.Context, entryID string) ([]types.RemoteEntry, error) {
	var entries []types.RemoteEntry
	pageToken := ""
	for {
		query := url.Values{}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var page listResponse
		if err := s.getJSON(ctx, "list", "/v1/entries/"+url.PathEscape(entryID)+"/children", query, &page); err != nil {
			return nil, err
		}
		for _, w := range page.Entries {
			entry, err := w.toEntry()
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		if page.NextPageToken == "" || page.NextPageToken == pageToken {
			return entries, nil
		}
		pageToken = page.NextPageToken
	}
}

func (s *Session) FetchFull(ctx context.Context, entryID string) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, s.contentPath(entryID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", entryID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.statusError("fetch", resp)
	}
	return resp.Body, nil
}

// FetchRange requests bytes=offset-. A 200 reply means the gateway ignored
// the range; 416 means the offset is past the end of the content.
func (s *Session) FetchRange(ctx context.Context, entryID string, offset int64) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, s.contentPath(entryID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch-range %s: %w", entryID, err)
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusOK:
		drain(resp)
		return nil, fmt.Errorf("%w: gateway returned full content for %s", session.ErrRangeUnsupported, entryID)
	case http.StatusRequestedRangeNotSatisfiable:
		drain(resp)
		return nil, fmt.Errorf("%w: offset %d beyond end of %s", session.ErrRangeUnsupported, offset, entryID)
	default:
		return nil, s.statusError("fetch-range", resp)
	}
}

func (s *Session) contentPath(entryID string) string {
	return "/v1/entries/" + url.PathEscape(entryID) + "/content"
}

func (s *Session) getEntry(ctx context.Context, op, path string) (types.RemoteEntry, error) {
	var w wireEntry
	if err := s.getJSON(ctx, op, path, nil, &w); err != nil {
		return types.RemoteEntry{}, err
	}
	return w.toEntry()
}

func (s *Session) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	req, err := s.newRequest(ctx, path, query)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return s.statusError(op, resp)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func (s *Session) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	target := s.base.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
}

// statusError consumes resp and maps its status onto the session errors
func (s *Session) statusError(op string, resp *http.Response) error {
	defer drain(resp)

	message := ""
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		message = parsed.Error
	} else {
		message = strings.TrimSpace(string(body))
	}

	statusErr := &session.StatusError{
		Code:       resp.StatusCode,
		Op:         op,
		Message:    message,
		RetryAfter: apperrors.ParseRetryAfter(resp.Header),
	}
	s.logger.Debug("gateway error",
		logging.F("op", op),
		logging.F("status", resp.StatusCode),
		logging.F("message", message),
	)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", session.ErrAuthExpired, statusErr.Error())
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", session.ErrNotFound, statusErr.Error())
	}
	return statusErr
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}
