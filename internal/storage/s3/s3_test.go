package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filemanager/internal/storage"
	"github.com/fruitsalade/filemanager/internal/storage/storagetest"
)

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "http://localhost:9000", endpointURL("http://localhost:9000", true))
}

func TestKeyMapping(t *testing.T) {
	d := &S3Disk{prefix: storage.Clean("/tenant/")}

	assert.Equal(t, "tenant/a/b.txt", d.objectKey("/a/b.txt"))
	assert.Equal(t, "tenant", d.objectKey(""))
	assert.Equal(t, "tenant/a/", d.dirKey("a"))
	assert.Equal(t, "a/b.txt", d.diskPath("tenant/a/b.txt"))

	bare := &S3Disk{}
	assert.Equal(t, "", bare.dirKey(""))
	assert.Equal(t, "a/", bare.dirKey("a"))
	assert.Equal(t, "a", bare.diskPath("a/"))
}

func TestCopySourceIsEscaped(t *testing.T) {
	d := &S3Disk{bucket: "files", prefix: storage.Clean("/tenant/")}

	assert.Equal(t, "files/tenant/a/b.txt", d.copySource("a/b.txt"))
	assert.Equal(t, "files/tenant/100%25/%C3%A9%20x.txt", d.copySource("100%/é x.txt"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NotFound{})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), BackendConfig{})
	assert.Error(t, err)
}

// TestS3DiskContract runs against a live S3-compatible endpoint with ACL
// support, e.g. TEST_S3_ENDPOINT=localhost:9000.
func TestS3DiskContract(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}
	access := os.Getenv("TEST_S3_ACCESS_KEY")
	secret := os.Getenv("TEST_S3_SECRET_KEY")
	if access == "" {
		access, secret = "minioadmin", "minioadmin"
	}

	bucket := os.Getenv("TEST_S3_BUCKET")
	if bucket == "" {
		bucket = "filemanager-test"
	}

	n := 0
	storagetest.RunDiskTests(t, func(t *testing.T) storage.Disk {
		n++
		d, err := New(context.Background(), BackendConfig{
			Endpoint:  endpoint,
			Bucket:    bucket,
			AccessKey: access,
			SecretKey: secret,
			Prefix:    fmt.Sprintf("run-%d-%d", time.Now().UnixNano(), n),
		})
		require.NoError(t, err)
		return d
	})
}
