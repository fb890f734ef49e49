package s3session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
)

type fakeS3 struct {
	s3iface.S3API
	objects      map[string]string
	ignoreRanges bool
	pageSize     int
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	prefix := aws.StringValue(in.Prefix)
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := map[string]bool{}
	var out []*s3.ListObjectsV2Output
	page := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, "/"); i >= 0 && i < len(rest)-1 {
			p := prefix + rest[:i+1]
			if !seen[p] {
				seen[p] = true
				page.CommonPrefixes = append(page.CommonPrefixes, &s3.CommonPrefix{Prefix: aws.String(p)})
			}
			continue
		}
		page.Contents = append(page.Contents, &s3.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			ETag:         aws.String(`"0123456789abcdef0123456789ABCDEF"`),
			LastModified: aws.Time(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)),
		})
		if f.pageSize > 0 && len(page.Contents) == f.pageSize {
			out = append(out, page)
			page = &s3.ListObjectsV2Output{}
		}
	}
	out = append(out, page)
	for i, p := range out {
		if !fn(p, i == len(out)-1) {
			break
		}
	}
	return nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.NewRequestFailure(awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil), http.StatusNotFound, "req-1")
	}
	if in.Range == nil || f.ignoreRanges {
		return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
	}
	var offset int
	fmt.Sscanf(aws.StringValue(in.Range), "bytes=%d-", &offset)
	if offset >= len(body) {
		return nil, awserr.NewRequestFailure(awserr.New("InvalidRange", "range not satisfiable", nil), http.StatusRequestedRangeNotSatisfiable, "req-2")
	}
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(strings.NewReader(body[offset:])),
		ContentRange: aws.String(fmt.Sprintf("bytes %d-%d/%d", offset, len(body)-1, len(body))),
	}, nil
}

func newFake() *fakeS3 {
	return &fakeS3{objects: map[string]string{
		"top.txt":           "top",
		"photos/":           "",
		"photos/a.jpg":      "aaaa",
		"photos/2023/b.jpg": "bb",
	}}
}

func TestListChildren(t *testing.T) {
	s := New(newFake(), "bucket", nil)
	ctx := context.Background()

	root, _ := s.DriveRoot(ctx)
	if root.ID != RootID || root.Name != "bucket" {
		t.Fatalf("root = %+v", root)
	}

	top, err := s.ListChildren(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].Kind != types.KindFolder || top[0].ID != "photos/" || top[0].Name != "photos" {
		t.Fatalf("top = %+v", top)
	}
	if top[1].Name != "top.txt" || top[1].Size != 3 || top[1].ContentHash != "0123456789abcdef0123456789abcdef" {
		t.Errorf("file = %+v", top[1])
	}

	photos, err := s.ListChildren(ctx, "photos/")
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 2 {
		t.Fatalf("photos = %+v (folder marker must be skipped)", photos)
	}
	if photos[0].ID != "photos/2023/" || photos[1].Name != "a.jpg" {
		t.Errorf("photos = %+v", photos)
	}
}

func TestListChildren_Pages(t *testing.T) {
	f := newFake()
	f.pageSize = 1
	f.objects["z.txt"] = "z"
	s := New(f, "bucket", nil)

	entries, err := s.ListChildren(context.Background(), RootID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFetch(t *testing.T) {
	f := newFake()
	s := New(f, "bucket", nil)
	ctx := context.Background()

	body, err := s.FetchRange(ctx, "photos/a.jpg", 1)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(body)
	if string(data) != "aaa" {
		t.Errorf("range body = %q", data)
	}

	if _, err := s.FetchRange(ctx, "photos/a.jpg", 10); !errors.Is(err, session.ErrRangeUnsupported) {
		t.Errorf("past-end error = %v", err)
	}

	f.ignoreRanges = true
	if _, err := s.FetchRange(ctx, "photos/a.jpg", 1); !errors.Is(err, session.ErrRangeUnsupported) {
		t.Errorf("ignored range error = %v", err)
	}

	if _, err := s.FetchFull(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("missing error = %v", err)
	}
}

func TestMD5FromETag(t *testing.T) {
	tests := map[string]string{
		`"d41d8cd98f00b204e9800998ecf8427e"`:   "d41d8cd98f00b204e9800998ecf8427e",
		`"d41d8cd98f00b204e9800998ecf8427e-3"`: "",
		`"short"`:                              "",
	}
	for in, want := range tests {
		if got := md5FromETag(in); got != want {
			t.Errorf("md5FromETag(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestPhotosUnsupported(t *testing.T) {
	s := New(newFake(), "bucket", nil)
	if _, err := s.PhotosRoot(context.Background()); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("PhotosRoot() error = %v", err)
	}
}

func TestNewFromConfig_RequiresBucket(t *testing.T) {
	if _, err := NewFromConfig(Options{}); err == nil {
		t.Error("expected error without bucket")
	}
}
