package locations

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/storage/objstore"
)

// WriteFile stores data at path, which is a local path, an s3://bucket/key
// URI or "-" for standard output.
func WriteFile(ctx context.Context, path string, data []byte) error {
	if path == Stdio {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("%w: writing stdout: %w", faults.ErrIO, err)
		}
		return nil
	}
	if strings.HasPrefix(path, "s3://") {
		client, err := newS3Client(ctx)
		if err != nil {
			return err
		}
		return WriteS3File(ctx, client, path, data)
	}
	return WriteLocalFile(path, data)
}

func WriteLocalFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: creating directory %s: %w", faults.ErrIO, dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing file %s: %w", faults.ErrIO, path, err)
	}
	return nil
}

func WriteS3File(ctx context.Context, s3Client objstore.S3Service, path string, data []byte) error {
	bucket, key, err := splitS3Path(path)
	if err != nil {
		return err
	}

	_, err = s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write object: %w", faults.ErrIO, err)
	}
	return nil
}
