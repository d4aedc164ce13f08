// Package artifacts publishes run outputs (animations, metrics) to a blob store:
// the local filesystem, process memory or an S3-compatible bucket.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"pipetter/internal/config"
	"time"
)

// Driver identifies a store implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverMemory     Driver = "memory"
	DriverS3         Driver = "s3"
)

// PutOptions are optional object attributes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	Metadata     map[string]string
	LastModified time.Time
}

// Store is a minimal S3-like object store. Put is create-only.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned for missing keys.
	ErrNotFound = errors.New("artifact not found")
	// ErrExists is returned by Put when the key is taken.
	ErrExists = errors.New("artifact already exists")
	// ErrUnsupported is returned when a driver lacks an optional capability.
	ErrUnsupported = errors.New("artifacts: unsupported operation")
)

// Open returns the store selected by cfg, or nil when publishing is disabled.
func Open(ctx context.Context, cfg config.ArtifactsConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.ArtifactDriverNone:
		return nil, nil
	case config.ArtifactDriverFS:
		return NewFilesystem(cfg.FSRoot)
	case config.ArtifactDriverMemory:
		return NewMemory(), nil
	case config.ArtifactDriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown artifact driver %s", cfg.Driver)
	}
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
