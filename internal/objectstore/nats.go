package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore keeps artifacts in a JetStream object store bucket.
type NatsStore struct {
	bucket string
	store  jetstream.ObjectStore
}

// Connect dials url and opens (creating if needed) the bucket.
func Connect(ctx context.Context, url, bucket string) (*NatsStore, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("storytime"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("open JetStream: %w", err)
	}
	store, err := NewNatsStore(ctx, js, bucket)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return store, nc, nil
}

// NewNatsStore binds to bucket, creating it on first use.
func NewNatsStore(ctx context.Context, js jetstream.JetStream, bucket string) (*NatsStore, error) {
	store, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Narrated audiobook clips for the %s bucket.", bucket),
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("open object store bucket %q: %w", bucket, err)
	}
	return &NatsStore{bucket: bucket, store: store}, nil
}

func (n *NatsStore) PutFile(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = n.store.Put(ctx, jetstream.ObjectMeta{
		Name:        key,
		Description: filepath.Base(localPath),
		Headers:     nats.Header{"Content-Type": []string{contentType}},
	}, f)
	if err != nil {
		return fmt.Errorf("put %s to bucket %q: %w", key, n.bucket, err)
	}
	return nil
}

func (n *NatsStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := n.store.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get %s from bucket %q: %w", key, n.bucket, err)
	}
	return data, nil
}

func (n *NatsStore) URL(key string) string {
	return "nats://" + n.bucket + "/" + key
}
