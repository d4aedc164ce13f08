package artifacts

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"pipetter/internal/logging"
	"strings"
)

// Key joins prefix, run ID and file name into an object key.
func Key(prefix, runID, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(runID, name)
	}
	return path.Join(prefix, runID, name)
}

// ListPrefix returns the key prefix under which a run's artifacts are stored, or
// the whole prefix when runID is empty. The result ends in "/" unless it is empty.
func ListPrefix(prefix, runID string) string {
	p := strings.Trim(path.Join(strings.Trim(prefix, "/"), runID), "/")
	if p == "" || p == "." {
		return ""
	}
	return p + "/"
}

// Publish uploads the file at src under prefix/runID/<base name>.
// A nil store is a no-op.
func Publish(ctx context.Context, s Store, prefix, runID, src string, metadata map[string]string) (Info, error) {
	if s == nil {
		return Info{}, nil
	}
	f, err := os.Open(src)
	if err != nil {
		return Info{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	md := cloneMetadata(metadata)
	if md == nil {
		md = make(map[string]string, 1)
	}
	md["run"] = runID

	key := Key(prefix, runID, filepath.Base(src))
	info, err := s.Put(ctx, key, f, PutOptions{ContentType: contentType(src), Metadata: md})
	if err != nil {
		return Info{}, fmt.Errorf("publish %s: %w", key, err)
	}
	logging.Artifacts("Published %s to %s (%d bytes)", filepath.Base(src), s.Driver(), info.Size)
	return info, nil
}

func contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".prom" {
		return "text/plain; version=0.0.4"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
