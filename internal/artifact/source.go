// Package artifact loads the persisted model artifacts once at startup and
// holds them in an immutable registry shared by every prediction.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact names.
const (
	NameSchema        = "schema"
	NameEncoders      = "encoders"
	NamePCAVelocity   = "pca_velocity"
	NameKMVelocity    = "km_velocity"
	NamePCATimeGap    = "pca_timegap"
	NameKMTimeGap     = "km_timegap"
	NamePCABehavioral = "pca_behavioral"
	NameKMBehavioral  = "km_behavioral"
	NameModel         = "model"
)

// ErrNotFound is returned by sources when an artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Source fetches raw artifact payloads by name.
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Store is a Source that can also be written to.
type Store interface {
	Source
	Put(ctx context.Context, name string, payload []byte) error
}

// FileName is the on-disk name of an artifact: the model is an XGBoost
// binary file, everything else JSON.
func FileName(name string) string {
	if name == NameModel {
		return name + ".bin"
	}
	return name + ".json"
}

// DirSource reads artifacts from a training output directory, one file
// per artifact named by FileName.
type DirSource struct {
	dir string
}

// NewDirSource creates a directory-backed source.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Fetch reads one artifact file.
func (s *DirSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}

	path := filepath.Join(s.dir, FileName(name))
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Names lists the artifact names present in the directory.
func (s *DirSource) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		name := strings.TrimSuffix(e.Name(), ext)
		if FileName(name) == e.Name() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ArtifactRepository is the slice of the audit repository that stores
// artifact blobs.
type ArtifactRepository interface {
	GetArtifact(ctx context.Context, name string) ([]byte, error)
	SaveArtifact(ctx context.Context, name string, payload []byte) error
}

// SQLSource serves artifacts from the repository's artifacts table.
type SQLSource struct {
	repo ArtifactRepository
}

// NewSQLSource wraps repo.
func NewSQLSource(repo ArtifactRepository) *SQLSource {
	return &SQLSource{repo: repo}
}

// Fetch implements Source.
func (s *SQLSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	return s.repo.GetArtifact(ctx, name)
}

// Put implements Store.
func (s *SQLSource) Put(ctx context.Context, name string, payload []byte) error {
	return s.repo.SaveArtifact(ctx, name, payload)
}

// MemorySource serves artifacts from memory.
type MemorySource map[string][]byte

// Fetch implements Source.
func (m MemorySource) Fetch(ctx context.Context, name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, nil
}

// Put implements Store.
func (m MemorySource) Put(ctx context.Context, name string, payload []byte) error {
	m[name] = payload
	return nil
}
