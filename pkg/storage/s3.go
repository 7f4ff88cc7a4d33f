package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/muvahhid/molayeri-sub002/config"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

// S3Store uploads to an S3 compatible bucket (AWS, MinIO, Supabase storage).
type S3Store struct {
	client  *s3.Client
	cfg     config.S3Config
	baseURL string
}

// NewS3Store builds a path-style client for cfg and makes sure the bucket
// exists. baseURL overrides the public URL prefix of uploaded objects.
func NewS3Store(ctx context.Context, cfg config.S3Config, baseURL string) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = joinURL(cfg.Endpoint, cfg.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	store := &S3Store{client: client, cfg: cfg, baseURL: baseURL}

	if err := store.ensureBucketExists(ctx); err != nil {
		log.Printf("S3Store: failed to ensure bucket %s exists: %v", cfg.Bucket, err)
	}
	return store, nil
}

func (s *S3Store) ensureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	})
	if err == nil {
		log.Debugf("S3Store: bucket %s already exists", s.cfg.Bucket)
		return nil
	}

	log.Printf("S3Store: creating bucket %s", s.cfg.Bucket)
	input := &s3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket)}
	// us-east-1 rejects an explicit location constraint.
	if s.cfg.Region != "" && s.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return err
	}

	waiter := s3.NewBucketExistsWaiter(s.client)
	return waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)}, 10*time.Second)
}

// Put implements ObjectStore.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3: %w", key, err)
	}

	log.Debugf("S3Store: uploaded %s (%d bytes)", key, size)
	return nil
}

// Delete implements ObjectStore.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting %s from s3: %w", key, err)
	}
	return nil
}

// URL implements ObjectStore.
func (s *S3Store) URL(key string) string {
	return joinURL(s.baseURL, key)
}
