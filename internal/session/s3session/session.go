// Package s3session mirrors an S3 bucket. Key prefixes ending in "/" act as
// folders and objects as files. Buckets have no photo library.
package s3session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	apperrors "github.com/dl-alexandre/icdl/internal/errors"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
)

// RootID is the entry ID of the bucket root
const RootID = "/"

// Options configures the S3 client built by NewFromConfig
type Options struct {
	Bucket   string
	Region   string
	Endpoint string
	// HTTPClient carries debug transports; credentials come from the
	// standard AWS chain
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Session implements session.Session over one bucket
type Session struct {
	client s3iface.S3API
	bucket string
	logger logging.Logger
}

var _ session.Session = (*Session)(nil)

func New(client s3iface.S3API, bucket string, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Session{client: client, bucket: bucket, logger: logger}
}

// NewFromConfig builds an S3 client from the shared AWS configuration
func NewFromConfig(opts Options) (*Session, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3session: bucket is required")
	}
	cfg := aws.NewConfig()
	if opts.Region != "" {
		cfg = cfg.WithRegion(opts.Region)
	}
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}
	if opts.HTTPClient != nil {
		cfg = cfg.WithHTTPClient(opts.HTTPClient)
	}
	sess, err := awssession.NewSessionWithOptions(awssession.Options{
		Config:            *cfg,
		SharedConfigState: awssession.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("s3session: creating AWS session: %w", err)
	}
	return New(s3.New(sess), opts.Bucket, opts.Logger), nil
}

func (s *Session) DriveRoot(ctx context.Context) (types.RemoteEntry, error) {
	return types.RemoteEntry{ID: RootID, Name: s.bucket, Kind: types.KindFolder}, nil
}

func (s *Session) PhotosRoot(ctx context.Context) (types.RemoteEntry, error) {
	return types.RemoteEntry{}, fmt.Errorf("%w: the s3 backend has no photo library", session.ErrNotFound)
}

func (s *Session) ResolveAlbum(ctx context.Context, nameOrID string) (types.RemoteEntry, error) {
	return types.RemoteEntry{}, fmt.Errorf("%w: album %q (the s3 backend has no photo library)", session.ErrNotFound, nameOrID)
}

// ListChildren lists one level below a prefix. Folder IDs are the full
// prefix including the trailing slash; file IDs are object keys.
func (s *Session) ListChildren(ctx context.Context, entryID string) ([]types.RemoteEntry, error) {
	prefix := entryID
	if prefix == RootID {
		prefix = ""
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var entries []types.RemoteEntry
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			p := aws.StringValue(cp.Prefix)
			name := strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, types.RemoteEntry{ID: p, Name: name, Kind: types.KindFolder})
		}
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			// zero-byte "folder/" markers created by consoles
			if key == prefix || strings.HasSuffix(key, "/") {
				continue
			}
			entries = append(entries, types.RemoteEntry{
				ID:           key,
				Name:         path.Base(key),
				Kind:         types.KindFile,
				Size:         aws.Int64Value(obj.Size),
				ContentHash:  md5FromETag(aws.StringValue(obj.ETag)),
				ModifiedTime: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, apperrors.FromAWS("list", err)
	}
	return entries, nil
}

func (s *Session) FetchFull(ctx context.Context, entryID string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(entryID),
	})
	if err != nil {
		return nil, apperrors.FromAWS("fetch", err)
	}
	return out.Body, nil
}

// FetchRange uses GetObjectInput.Range. A reply without Content-Range means
// the range was ignored.
func (s *Session) FetchRange(ctx context.Context, entryID string, offset int64) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(entryID),
		Range:  aws.String(fmt.Sprintf("bytes=%d-", offset)),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == "InvalidRange" {
			return nil, fmt.Errorf("%w: offset %d beyond end of %s", session.ErrRangeUnsupported, offset, entryID)
		}
		return nil, apperrors.FromAWS("fetch-range", err)
	}
	want := fmt.Sprintf("bytes %d-", offset)
	if !strings.HasPrefix(aws.StringValue(out.ContentRange), want) {
		_ = out.Body.Close()
		return nil, fmt.Errorf("%w: no matching Content-Range for %s", session.ErrRangeUnsupported, entryID)
	}
	return out.Body, nil
}

// md5FromETag returns the object MD5 for single-part uploads. Multipart
// ETags ("<hash>-<parts>") are not content hashes.
func md5FromETag(etag string) string {
	etag = strings.Trim(etag, `"`)
	if len(etag) != 32 || strings.Contains(etag, "-") {
		return ""
	}
	return strings.ToLower(etag)
}
