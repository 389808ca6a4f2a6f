package objstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Service is the part of the S3 client used to read input and write sorted
// output.
type S3Service interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ S3Service = (*s3.Client)(nil)
