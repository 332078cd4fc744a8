package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader copies a finished archive somewhere off the host.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// S3Config configures the S3 uploader.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack). Setting
	// it switches to path-style addressing.
	Endpoint string
	Prefix   string
}

// PutObjectAPI is the subset of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores archives in an S3 bucket.
type S3Uploader struct {
	client     PutObjectAPI
	bucket     string
	prefix     string
	maxRetries int
}

// NewS3Uploader loads AWS credentials from the environment and returns an
// uploader for cfg.Bucket.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewS3UploaderWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

// NewS3UploaderWithClient creates an uploader around an existing client.
func NewS3UploaderWithClient(client PutObjectAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix, maxRetries: 3}
}

// Upload puts the file at localPath under prefix+key and returns its
// s3:// location.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath) //#nosec G304 -- path comes from the backup directory
	if err != nil {
		return "", err
	}
	defer f.Close()

	objectKey := path.Join(u.prefix, key)
	backoff := 200 * time.Millisecond
	for attempt := 0; ; attempt++ {
		if _, err = f.Seek(0, 0); err != nil {
			return "", err
		}
		_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(objectKey),
			Body:        f,
			ContentType: aws.String("application/zip"),
		})
		if err == nil || attempt+1 >= u.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return "s3://" + u.bucket + "/" + objectKey, nil
}
