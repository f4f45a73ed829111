package domain

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// ArtifactFile is one file of a package.
type ArtifactFile struct {
	// Path is relative to the package root, slash separated.
	Path   string        `json:"path"`
	Digest digest.Digest `json:"digest"`
	Size   int64         `json:"size"`
	Mode   uint32        `json:"mode"`
	// Link is the target of a symbolic link, empty for regular files.
	Link string `json:"link,omitempty"`
}

// PackageArtifact is the immutable result of packaging one configuration.
type PackageArtifact struct {
	Recipe    RecipeMeta
	ConfigKey string
	// Root is the directory holding the packaged files.
	Root string
	// Files are sorted by path.
	Files []ArtifactFile
	Info  PackageInfo
	// SourceHash fingerprints the patched source tree the package was built from.
	SourceHash string
}

// ID returns the store identity of the artifact.
func (a PackageArtifact) ID() PackageID {
	return PackageID{Name: a.Recipe.Name, Version: a.Recipe.Version, ConfigKey: a.ConfigKey}
}

// PackageID addresses a published package.
type PackageID struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	ConfigKey string `json:"config_key"`
}

func (id PackageID) String() string {
	return id.Name + "/" + id.Version + "@" + id.ConfigKey
}

// PublishRecord is what the package store persists for a published artifact.
type PublishRecord struct {
	ID PackageID `json:"id"`
	// Digest addresses the compressed archive of the package files.
	Digest     digest.Digest  `json:"digest"`
	Archive    string         `json:"archive"`
	Files      []ArtifactFile `json:"files"`
	Info       PackageInfo    `json:"info"`
	SourceHash string         `json:"source_hash,omitzero"`
	Timestamp  time.Time      `json:"timestamp,omitzero"`
}
