package config

import "fmt"

// Artifact store drivers.
const (
	ArtifactDriverNone   = "none"
	ArtifactDriverFS     = "fs"
	ArtifactDriverMemory = "memory"
	ArtifactDriverS3     = "s3"
)

// ArtifactsConfig selects where run animations are published.
type ArtifactsConfig struct {
	Driver string   `yaml:"driver" toml:"driver"` // none, fs, memory, s3
	Prefix string   `yaml:"prefix" toml:"prefix"` // key prefix, e.g. runs/<run-id>/...
	FSRoot string   `yaml:"fs_root" toml:"fs_root"`
	S3     S3Config `yaml:"s3" toml:"s3"`

	// Lifetime of download links printed after a run (s3 only).
	URLExpiry string `yaml:"url_expiry" toml:"url_expiry"`
}

// S3Config configures the S3 (or S3-compatible) artifact store.
type S3Config struct {
	Bucket          string `yaml:"bucket" toml:"bucket"`
	Region          string `yaml:"region" toml:"region"`
	Endpoint        string `yaml:"endpoint" toml:"endpoint"`
	PathStyle       bool   `yaml:"path_style" toml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
}

func (a ArtifactsConfig) validate() error {
	switch a.Driver {
	case "", ArtifactDriverNone, ArtifactDriverMemory:
	case ArtifactDriverFS:
		if a.FSRoot == "" {
			return fmt.Errorf("artifacts.fs_root is required for the fs driver")
		}
	case ArtifactDriverS3:
		if a.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("invalid artifacts.driver: %s (valid: none, fs, memory, s3)", a.Driver)
	}
	return nil
}
