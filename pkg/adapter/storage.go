package adapter

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage is the interface for archived payload storage. The router's
// cache-sync protocol writes fetched external payloads through it.
type Storage interface {
	// Put returns a writer to save a payload under a key
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get loads a payload by key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// storageClient implements Storage using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	return obj.NewWriter(ctx), nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("key", key))
	}
	return reader, nil
}

// dirStorage implements Storage on a local directory, for local-only runs
type dirStorage struct {
	dir string
}

// NewDirStorage creates a Storage backed by a local directory
func NewDirStorage(dir string) (Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create storage directory", goerr.V("dir", dir))
	}
	return &dirStorage{dir: dir}, nil
}

func (s *dirStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	f, err := os.Create(filepath.Join(s.dir, url.PathEscape(key)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage file", goerr.V("key", key))
	}
	return f, nil
}

func (s *dirStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, url.PathEscape(key)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open storage file", goerr.V("key", key))
	}
	return f, nil
}
