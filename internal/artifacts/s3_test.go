package artifacts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"pipetter/internal/config"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves the subset of the S3 REST API the store uses.
// Listing pages one key at a time to exercise continuation tokens.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
	meta        http.Header
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix"), req.URL.Query().Get("continuation-token")), nil
	}

	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return response(http.StatusNotFound, nil, nil), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"etag-` + key + `"`},
			"Last-Modified":  {time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat)},
		}
		for k, v := range obj.meta {
			h[k] = v
		}
		if req.Method == http.MethodHead {
			return response(http.StatusOK, h, nil), nil
		}
		return response(http.StatusOK, h, obj.body), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeAWSChunked(body)
		}
		meta := http.Header{}
		for k, v := range req.Header {
			if strings.HasPrefix(k, "X-Amz-Meta-") {
				meta[k] = v
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), meta: meta}
		return response(http.StatusOK, http.Header{"Etag": {`"etag"`}}, nil), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	if start+1 < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", start+1)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	if start < len(keys) {
		k := keys[start]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-02T03:04:05Z</LastModified></Contents>",
			k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return response(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, []byte(b.String()))
}

func response(status int, h http.Header, body []byte) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeAWSChunked strips aws-chunked framing: <hex size>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>.
func decodeAWSChunked(b []byte) []byte {
	r := bufio.NewReader(bytes.NewReader(b))
	var out []byte
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return out
		}
		sizeHex := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil || size == 0 {
			return out
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return out
		}
		out = append(out, chunk...)
		_, _ = r.ReadString('\n')
	}
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]fakeObject)}
	s, err := NewS3(context.Background(), config.S3Config{
		Bucket:          "pipetter-test",
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
	})
	require.NoError(t, err)
	return s, fake
}

func TestS3Store(t *testing.T) {
	s, fake := newFakeS3Store(t)
	assert.Equal(t, DriverS3, s.Driver())
	exerciseStore(t, s)

	obj, ok := fake.objects["runs/r1/protocol.gif"]
	require.True(t, ok)
	assert.Equal(t, "GIF89a", string(obj.body))
	assert.Equal(t, "image/gif", obj.contentType)
}

func TestS3Store_ListPaginates(t *testing.T) {
	s, _ := newFakeS3Store(t)
	ctx := context.Background()
	for _, k := range []string{"runs/c", "runs/a", "runs/b"} {
		_, err := s.Put(ctx, k, strings.NewReader(k), PutOptions{})
		require.NoError(t, err)
	}

	list, err := s.List(ctx, "runs/")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"runs/a", "runs/b", "runs/c"}, []string{list[0].Key, list[1].Key, list[2].Key})
	assert.EqualValues(t, 6, list[0].Size)
}

func TestS3Store_PresignURL(t *testing.T) {
	s, _ := newFakeS3Store(t)

	u, err := s.PresignURL(context.Background(), "runs/r1/protocol.gif", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "mock.s3.local/pipetter-test/runs/r1/protocol.gif")
	assert.Contains(t, u, "X-Amz-Expires=300")
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), config.S3Config{})
	assert.Error(t, err)
}
