// Package storage persists shortlist artifacts as JSON documents.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/logger"
)

const (
	artifactPrefix    = "shortlist_"
	artifactExt       = ".json"
	artifactTimestamp = "20060102T150405Z"
	dirPerm           = 0o755
	filePerm          = 0o644
)

// ShortlistWriter saves shortlist artifacts into a directory
type ShortlistWriter struct {
	fs  afero.Fs
	dir string
	log logger.Logger
}

// NewShortlistWriter creates a writer rooted at dir. Use afero.NewOsFs() in production.
func NewShortlistWriter(fsys afero.Fs, dir string, log logger.Logger) *ShortlistWriter {
	if log == nil {
		log = logger.NewNop()
	}
	return &ShortlistWriter{fs: fsys, dir: dir, log: log}
}

// ArtifactName returns the file name for an artifact created at t
func ArtifactName(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return artifactPrefix + t.UTC().Format(artifactTimestamp) + "_" + suffix + artifactExt
}

// Save writes the artifact atomically: a temp file in the same directory is written, synced and
// renamed into place, so readers never observe a partial artifact.
func (w *ShortlistWriter) Save(ctx context.Context, artifact *domain.ShortlistArtifact) (string, error) {
	if artifact == nil {
		return "", persistError(errors.New("nil artifact"))
	}
	if err := ctx.Err(); err != nil {
		return "", persistError(err)
	}

	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	if artifact.Name == "" {
		artifact.Name = ArtifactName(artifact.CreatedAt)
	}
	if artifact.Suppliers == nil {
		artifact.Suppliers = []domain.ScoredSupplier{}
	}
	artifact.TotalSuppliers = len(artifact.Suppliers)

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", persistError(fmt.Errorf("encode artifact: %w", err))
	}

	if err := w.fs.MkdirAll(w.dir, dirPerm); err != nil {
		return "", persistError(fmt.Errorf("create directory %s: %w", w.dir, err))
	}

	path := filepath.Join(w.dir, artifact.Name)
	if err := w.writeAtomic(path, data); err != nil {
		return "", persistError(err)
	}

	w.log.Info("Shortlist saved",
		logger.String("path", path),
		logger.Int("suppliers", artifact.TotalSuppliers),
	)
	return path, nil
}

func (w *ShortlistWriter) writeAtomic(path string, data []byte) error {
	tmp, err := afero.TempFile(w.fs, w.dir, "."+artifactPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := w.fs.Chmod(tmpName, filePerm); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := w.fs.Rename(tmpName, path); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

// Load reads an artifact back from path
func (w *ShortlistWriter) Load(ctx context.Context, path string) (*domain.ShortlistArtifact, error) {
	data, err := afero.ReadFile(w.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}

	var artifact domain.ShortlistArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return &artifact, nil
}

// Latest returns the path of the newest artifact in the directory.
// Artifact names sort chronologically because they start with a UTC timestamp.
func (w *ShortlistWriter) Latest(ctx context.Context) (string, error) {
	entries, err := afero.ReadDir(w.fs, w.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", domain.ErrArtifactNotFound
	}
	if err != nil {
		return "", fmt.Errorf("list %s: %w", w.dir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", domain.ErrArtifactNotFound
	}

	sort.Strings(names)
	return filepath.Join(w.dir, names[len(names)-1]), nil
}

// Dir returns the directory artifacts are written to
func (w *ShortlistWriter) Dir() string {
	return w.dir
}

func persistError(err error) error {
	return &domain.StageError{
		Stage: domain.StagePersist,
		Err:   fmt.Errorf("%w: %w", domain.ErrPersistence, err),
	}
}
