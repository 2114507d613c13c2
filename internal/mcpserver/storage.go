package mcpserver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apresai/storytime/internal/objectstore"
)

// publishFiles uploads each file under the job's key prefix and returns
// where they landed, in input order.
func publishFiles(ctx context.Context, store objectstore.Store, jobID string, paths []string) ([]ClipRef, error) {
	refs := make([]ClipRef, 0, len(paths))
	for _, p := range paths {
		ref, err := publishFile(ctx, store, jobID, p)
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func publishFile(ctx context.Context, store objectstore.Store, jobID, path string) (ClipRef, error) {
	name := filepath.Base(path)
	key := objectstore.JobKey(jobID, name)
	if err := store.PutFile(ctx, key, path, objectstore.ContentType(name)); err != nil {
		return ClipRef{}, fmt.Errorf("publish %s: %w", name, err)
	}
	return ClipRef{Name: name, Key: key, URL: store.URL(key)}, nil
}
