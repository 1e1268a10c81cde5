// Package cloud implements model.CloudBackend against concrete object
// storage providers: S3 and Azure Blob. Neither backend is used by the
// consensus core directly (spec.md §1 scopes "disk/cloud object storage
// drivers" out of the core's own concern); C9's rollback service is
// handed an ordered []model.CloudBackend and fails over across them.
package cloud

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// S3Backend is a model.CloudBackend backed by an S3-compatible bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
}

// NewS3Backend loads the default AWS credential chain (environment,
// shared config, instance role) and returns a Backend scoped to bucket.
func NewS3Backend(ctx context.Context, bucket string) (*S3Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load default aws config")
	}
	return &S3Backend{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Name implements model.CloudBackend.
func (b *S3Backend) Name() string { return "s3:" + b.bucket }

// PutObject implements model.CloudBackend.
func (b *S3Backend) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errors.Wrapf(err, "s3: failed to put object %s", key)
	}
	return nil
}

// GetObject implements model.CloudBackend.
func (b *S3Backend) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "s3: failed to get object %s", key)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "s3: failed to read object body %s", key)
	}
	return data, nil
}

// ListKeysWithPrefix implements model.CloudBackend.
func (b *S3Backend) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var continuationToken *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "s3: failed to list objects under %s", prefix)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuationToken = out.NextContinuationToken
	}
	return keys, nil
}
