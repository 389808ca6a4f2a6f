package objstore

import (
	"bytes"
	"context"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MemoryS3Service is an in-memory implementation of the S3Service for testing.
type MemoryS3Service struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryS3Service() *MemoryS3Service {
	return &MemoryS3Service{
		data: make(map[string][]byte),
	}
}

func (m *MemoryS3Service) GetObject(ctx context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.data[path.Join(*input.Bucket, *input.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (m *MemoryS3Service) PutObject(ctx context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	buf, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path.Join(*input.Bucket, *input.Key)] = buf
	return &s3.PutObjectOutput{}, nil
}

var _ S3Service = (*MemoryS3Service)(nil)
