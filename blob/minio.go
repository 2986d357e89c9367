package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is a data directory in an S3 compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectStore connects a minio client. No request is made until the first Open.
func NewObjectStore(cfg ObjectStoreConfig, bucket, prefix string) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required for s3 data dirs")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return NewObjectStoreWithClient(client, bucket, prefix), nil
}

// NewObjectStoreWithClient wraps an existing client.
func NewObjectStoreWithClient(client *minio.Client, bucket, prefix string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *ObjectStore) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *ObjectStore) Location(name string) string {
	return "s3://" + path.Join(s.bucket, s.key(name))
}

// Open streams an object. Existence is checked first so a missing file fails
// here rather than on the first read.
func (s *ObjectStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.key(name)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("open %s: %w", s.Location(name), ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", s.Location(name), err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.Location(name), err)
	}
	return Decompress(name, obj)
}

// Create uploads whatever is written until Close as one object.
func (s *ObjectStore) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	up := &upload{pw: pw, done: make(chan error, 1)}

	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, s.key(name), pr, -1, minio.PutObjectOptions{
			ContentType: "text/csv",
		})
		_ = pr.CloseWithError(err)
		up.done <- err
	}()

	return Compress(name, up)
}

type upload struct {
	pw     *io.PipeWriter
	done   chan error
	closed bool
}

func (u *upload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

func (u *upload) Close() error {
	if u.closed {
		return errors.New("upload already closed")
	}
	u.closed = true
	if err := u.pw.Close(); err != nil {
		return err
	}
	return <-u.done
}
