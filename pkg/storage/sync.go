// Package storage mirrors the local cache tree to an object store. The
// mirror is one-way: local files are uploaded, nothing is deleted.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ObjectStore is the narrow surface the syncer needs from a bucket.
type ObjectStore interface {
	// List returns remote object sizes keyed by relative path.
	List(ctx context.Context) (map[string]int64, error)

	// Upload stores one local file under the relative key.
	Upload(ctx context.Context, key, localPath string) error
}

// Result summarizes one sync run.
type Result struct {
	Uploaded int
	Skipped  int
	Failed   int
	Errors   []error
}

// Success reports whether every file made it up.
func (r *Result) Success() bool { return r.Failed == 0 }

// Summary renders the one-line accounting for the CLI.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d uploaded, %d skipped, %d failed", r.Uploaded, r.Skipped, r.Failed)
}

// Syncer mirrors a local directory into an ObjectStore.
type Syncer struct {
	store  ObjectStore
	root   string
	log    zerolog.Logger
	DryRun bool
}

// NewSyncer creates a Syncer over the local cache root.
func NewSyncer(store ObjectStore, root string, logger zerolog.Logger) *Syncer {
	return &Syncer{store: store, root: root, log: logger}
}

// Sync uploads every local file that is absent remotely or differs in
// size. Matching sizes are assumed current and skipped. Per-file upload
// failures are recorded and the rest continue.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	local, err := s.localFiles()
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", s.root, err)
	}
	if len(local) == 0 {
		return &Result{}, nil
	}

	remote, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing remote objects: %w", err)
	}

	keys := make([]string, 0, len(local))
	for key := range local {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := &Result{}
	for _, key := range keys {
		if remoteSize, ok := remote[key]; ok && remoteSize == local[key].size {
			result.Skipped++
			continue
		}
		if s.DryRun {
			s.log.Info().Str("key", key).Msg("dry run: would upload")
			result.Uploaded++
			continue
		}
		if err := s.store.Upload(ctx, key, local[key].path); err != nil {
			s.log.Warn().Str("key", key).Err(err).Msg("upload failed")
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", key, err))
			continue
		}
		result.Uploaded++
	}

	s.log.Info().
		Int("uploaded", result.Uploaded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("sync complete")
	return result, nil
}

type localFile struct {
	path string
	size int64
}

func (s *Syncer) localFiles() (map[string]localFile, error) {
	files := make(map[string]localFile)
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = localFile{path: path, size: info.Size()}
		return nil
	})
	return files, err
}
