package locations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/storage/objstore"
)

var ErrNotFound = errors.New("path not found")

// Stdio is the path naming standard input or standard output.
const Stdio = "-"

// ReadFile reads the whole file at path, which is a local path, an
// s3://bucket/key URI or "-" for standard input. Failures wrap faults.ErrIO.
func ReadFile(ctx context.Context, path string) ([]byte, error) {
	if path == Stdio {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("%w: reading stdin: %w", faults.ErrIO, err)
		}
		return data, nil
	}
	if strings.HasPrefix(path, "s3://") {
		client, err := newS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return ReadS3File(ctx, client, path)
	}
	return ReadLocalFile(path)
}

func ReadLocalFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: opening file %s: %w", faults.ErrIO, path, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: opening file %s: %w", faults.ErrIO, path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: reading file %s: %w", faults.ErrIO, path, err)
	}
	return data, nil
}

func ReadS3File(ctx context.Context, s3Client objstore.S3Service, path string) ([]byte, error) {
	bucket, key, err := splitS3Path(path)
	if err != nil {
		return nil, err
	}

	output, err := s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: file not found at %s: %w", faults.ErrIO, path, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: failed to read object: %w", faults.ErrIO, err)
	}

	defer output.Body.Close()
	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading object %s: %w", faults.ErrIO, path, err)
	}
	return data, nil
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS configuration: %w", faults.ErrIO, err)
	}
	return s3.NewFromConfig(cfg), nil
}

func splitS3Path(path string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(path, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 path, must include bucket and key: %s", path)
	}
	return parts[0], parts[1], nil
}
