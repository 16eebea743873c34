//go:build integration

package s3

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dsserver/pkg/blobstore"
	"github.com/marmos91/dsserver/pkg/blobstore/storetest"
	"github.com/stretchr/testify/require"
)

// TestS3Store_Integration runs the store suite against Localstack.
//
//	docker run --rm -p 4566:4566 localstack/localstack
//	go test -tags=integration ./pkg/blobstore/s3/...
func TestS3Store_Integration(t *testing.T) {
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	client, err := NewClient(ctx, ClientConfig{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxRetries:      1,
	})
	require.NoError(t, err)

	bucket := "dsserver-test-bucket"
	_, _ = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})

	suite := &storetest.Suite{
		NewStore: func(t *testing.T) blobstore.Store {
			s, err := New(ctx, Config{Client: client, Bucket: bucket, KeyPrefix: t.Name() + "/"})
			require.NoError(t, err)
			return s
		},
	}
	suite.Run(t)
}
