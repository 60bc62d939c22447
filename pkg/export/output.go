package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// StorageError reports a failed write of an output object.
type StorageError struct {
	Key  string
	Code gcerrors.ErrorCode
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("write %s (%s): %v", e.Key, e.Code, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// OpenOutput opens the bucket export files are written to. A target
// without a URL scheme is a local directory, created if missing, that
// receives the export files only. Anything else is handed to
// blob.OpenBucket with the file, mem, s3 and gs schemes registered.
func OpenOutput(ctx context.Context, target string) (*blob.Bucket, error) {
	if !strings.Contains(target, "://") {
		dir, err := filepath.Abs(target)
		if err != nil {
			return nil, fmt.Errorf("resolve output directory: %w", err)
		}
		bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
			CreateDir: true,
			Metadata:  fileblob.MetadataDontWrite,
		})
		if err != nil {
			return nil, fmt.Errorf("open output directory %s: %w", dir, err)
		}
		return bucket, nil
	}

	bucket, err := blob.OpenBucket(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", target, err)
	}
	return bucket, nil
}

// writeObject stores content under key in one call.
func writeObject(ctx context.Context, bucket *blob.Bucket, key string, content []byte, contentType string) error {
	err := bucket.WriteAll(ctx, key, content, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return &StorageError{Key: key, Code: gcerrors.Code(err), Err: err}
	}
	return nil
}
