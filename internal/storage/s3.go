package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"hiring-data-sync/internal/errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Store keeps objects in an Amazon S3 bucket
type S3Store struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Store creates an S3Store. Static credentials are used when configured,
// otherwise the default AWS credential chain applies.
func NewS3Store(config *S3Config) (*S3Store, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.NewConfigurationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.NewStorageError("failed to create AWS session", err)
	}

	return &S3Store{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: config.Prefix,
	}, nil
}

// Create stages the object locally and uploads it with a single PutObject on Commit
func (s *S3Store) Create(ctx context.Context, key string) (Upload, error) {
	objectKey := joinPrefix(s.prefix, key)
	return newStagedUpload(func(ctx context.Context, f *os.File, size int64) error {
		_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectKey),
			Body:          f,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String("application/octet-stream"),
		})
		if err != nil {
			return errors.NewStorageError(fmt.Sprintf("failed to upload %s to S3", objectKey), err)
		}
		return nil
	})
}

// Open streams the object body
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey := joinPrefix(s.prefix, key)
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, errors.NewStorageReadError(fmt.Sprintf("failed to download %s from S3", objectKey), err)
	}
	return out.Body, nil
}

// List pages through the bucket listing under prefix
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(joinPrefix(s.prefix, prefix)),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				objects = append(objects, ObjectInfo{
					Key:     trimPrefix(s.prefix, aws.StringValue(obj.Key)),
					Size:    aws.Int64Value(obj.Size),
					ModTime: aws.TimeValue(obj.LastModified),
				})
			}
			return true
		})
	if err != nil {
		return nil, errors.NewStorageReadError("failed to list objects in S3", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Delete removes the object
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(joinPrefix(s.prefix, key)),
	})
	if err != nil {
		return errors.NewStorageError(fmt.Sprintf("failed to delete %s from S3", key), err)
	}
	return nil
}

// Location returns the s3:// URL of key
func (s *S3Store) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, joinPrefix(s.prefix, key))
}

// Close is a no-op; the SDK holds no resources that need releasing
func (s *S3Store) Close() error {
	return nil
}
