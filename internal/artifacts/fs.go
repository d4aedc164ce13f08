package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const metaSuffix = ".meta.json"

// FilesystemStore stores objects as files under a root directory, with a JSON
// sidecar holding content type and metadata.
type FilesystemStore struct {
	root string
}

type fsMeta struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewFilesystem creates the root directory if needed.
func NewFilesystem(root string) (*FilesystemStore, error) {
	if root == "" {
		root = "artifacts"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) Driver() Driver { return DriverFilesystem }

// path maps a key to a file, rejecting keys that escape the root.
func (s *FilesystemStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if key == "" || clean == "." || strings.HasPrefix(clean, "..") || strings.HasSuffix(clean, metaSuffix) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FilesystemStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	p, err := s.path(key)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Info{}, err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Info{}, fmt.Errorf("%s: %w", key, ErrExists)
		}
		return Info{}, err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return Info{}, err
	}
	if err := f.Close(); err != nil {
		return Info{}, err
	}
	meta, err := json.Marshal(fsMeta{ContentType: opts.ContentType, Metadata: opts.Metadata})
	if err != nil {
		return Info{}, err
	}
	if err := os.WriteFile(p+metaSuffix, meta, 0o644); err != nil {
		return Info{}, err
	}
	return s.Head(context.Background(), key)
}

func (s *FilesystemStore) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	p, _ := s.path(key)
	f, err := os.Open(p)
	if err != nil {
		return Info{}, nil, err
	}
	return info, f, nil
}

func (s *FilesystemStore) Head(_ context.Context, key string) (Info, error) {
	p, err := s.path(key)
	if err != nil {
		return Info{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return Info{}, err
	}
	info := Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}
	if raw, err := os.ReadFile(p + metaSuffix); err == nil {
		var m fsMeta
		if json.Unmarshal(raw, &m) == nil {
			info.ContentType = m.ContentType
			info.Metadata = m.Metadata
		}
	}
	return info, nil
}

func (s *FilesystemStore) Delete(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(p + metaSuffix)
	return true, nil
}

func (s *FilesystemStore) List(ctx context.Context, prefix string) ([]Info, error) {
	var out []Info
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.Head(ctx, key)
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FilesystemStore) PresignURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrUnsupported
}
