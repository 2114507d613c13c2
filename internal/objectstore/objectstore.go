// Package objectstore publishes finished audiobook artifacts to shared
// storage: S3 (optionally fronted by a CDN) or a NATS JetStream object
// store bucket.
package objectstore

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store.
type Store interface {
	// PutFile uploads the file at localPath under key.
	PutFile(ctx context.Context, key, localPath, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// URL is where a client can fetch key.
	URL(key string) string
}

// ContentType guesses the MIME type of an artifact from its extension.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// JobKey is the key of one artifact of an audiobook job.
func JobKey(jobID, name string) string {
	return "audiobooks/" + jobID + "/" + path.Base(name)
}
