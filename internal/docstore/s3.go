package docstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Driver stores version blobs in an S3-compatible bucket.
type S3Driver struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	publicURL     string
}

// NewS3Driver creates an S3Driver over the given client and bucket.
// publicURL, when set, is used instead of presigning.
func NewS3Driver(client *s3.Client, bucket string, publicURL string) *S3Driver {
	return &S3Driver{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
		publicURL:     publicURL,
	}
}

func (d *S3Driver) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s to S3: %w", key, err)
	}
	return nil
}

func (d *S3Driver) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get blob %s from S3: %w", key, err)
	}

	contentType := "application/octet-stream"
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	return resp.Body, contentType, nil
}

func (d *S3Driver) Remove(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s from S3: %w", key, err)
	}
	return nil
}

func (d *S3Driver) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if d.publicURL != "" {
		return fmt.Sprintf("%s/%s", d.publicURL, key), nil
	}

	if expires == 0 {
		expires = time.Hour
	}
	presigned, err := d.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign URL for blob %s: %w", key, err)
	}
	return presigned.URL, nil
}
