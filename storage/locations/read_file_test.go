package locations_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/storage/locations"
	"pipesort.dev/pipesort/storage/objstore"
)

func TestReadLocalFile(t *testing.T) {
	// Create a temporary file with binary content, 255 included
	tempDir := t.TempDir()
	testContent := []byte{4, 2, 7, 1, 255}
	filePath := filepath.Join(tempDir, "numbers")
	err := os.WriteFile(filePath, testContent, 0644)
	require.NoError(t, err, "prereq: writing test file should not return an error")

	content, err := locations.ReadFile(t.Context(), filePath)
	assert.NoError(t, err, "reading existing file should not return an error")
	assert.Equal(t, testContent, content, "file content should match what was written")

	// Test reading non-existent file
	content, err = locations.ReadLocalFile(filepath.Join(tempDir, "nonexistent"))
	assert.ErrorIs(t, err, locations.ErrNotFound, "reading non-existent file should return ErrNotFound")
	assert.ErrorIs(t, err, faults.ErrIO, "a missing input is an IO failure")
	assert.Nil(t, content, "content should be nil for non-existent file")
}

func TestReadS3File(t *testing.T) {
	s3Service := objstore.NewMemoryS3Service()
	bucketName := "test-bucket"
	key := "inputs/numbers"
	testContent := []byte{9, 9, 9, 9}

	_, err := s3Service.PutObject(t.Context(), &s3.PutObjectInput{
		Bucket: &bucketName,
		Key:    &key,
		Body:   bytes.NewReader(testContent),
	})
	require.NoError(t, err, "putting test object should not return an error")

	content, err := locations.ReadS3File(t.Context(), s3Service, "s3://"+bucketName+"/"+key)
	assert.NoError(t, err, "reading existing S3 file should not return an error")
	assert.Equal(t, testContent, content, "S3 file content should match what was uploaded")

	_, err = locations.ReadS3File(t.Context(), s3Service, "s3://"+bucketName+"/inputs/nonexistent")
	assert.ErrorIs(t, err, locations.ErrNotFound, "reading non-existent S3 file should return an error")
	assert.ErrorIs(t, err, faults.ErrIO)

	_, err = locations.ReadS3File(t.Context(), s3Service, "s3://invalid-format")
	assert.Error(t, err, "reading with invalid S3 path format should return an error")
}

func TestWriteLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sorted.txt")
	require.NoError(t, locations.WriteFile(t.Context(), path, []byte("1\n2\n")))

	content, err := locations.ReadLocalFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("1\n2\n"), content)
}

func TestWriteS3File(t *testing.T) {
	s3Service := objstore.NewMemoryS3Service()
	path := "s3://results/run/sorted.txt"

	require.NoError(t, locations.WriteS3File(t.Context(), s3Service, path, []byte("1\n5\n")))

	content, err := locations.ReadS3File(t.Context(), s3Service, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("1\n5\n"), content)

	assert.Error(t, locations.WriteS3File(t.Context(), s3Service, "s3://bucket-only", nil))
}

func TestReadFile_UnopenablePathIsIOError(t *testing.T) {
	// A directory opens but cannot be read as a file.
	_, err := locations.ReadFile(t.Context(), t.TempDir())
	assert.ErrorIs(t, err, faults.ErrIO)

	_, err = locations.ReadFile(t.Context(), "/nonexistent/numbers")
	assert.ErrorIs(t, err, faults.ErrIO)
	assert.ErrorIs(t, err, locations.ErrNotFound)
}
