package digitalocean

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// ErrObjectNotFound is returned by Fetch for a missing key
var ErrObjectNotFound = errors.New("object not found")

// SpacesConfig locates a Spaces bucket
type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	// Endpoint defaults to https://<region>.digitaloceanspaces.com
	Endpoint string
}

func (c *SpacesConfig) validate() error {
	if c.Bucket == "" || c.Region == "" {
		return errors.New("DO_SPACES_BUCKET and DO_SPACES_REGION must be configured")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("DO_SPACES_ACCESS_KEY and DO_SPACES_SECRET_KEY must be configured")
	}
	if c.Endpoint == "" {
		c.Endpoint = fmt.Sprintf("https://%s.digitaloceanspaces.com", c.Region)
	}
	return nil
}

// SpacesClient keeps private, gzip-compressed JSON documents in a Spaces bucket
type SpacesClient struct {
	s3Client s3iface.S3API
	bucket   string
}

// NewSpacesClient builds an S3 session against the Spaces endpoint
func NewSpacesClient(config SpacesConfig) (*SpacesClient, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		Endpoint:    aws.String(config.Endpoint),
		Region:      aws.String(config.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spaces session: %w", err)
	}

	return NewSpacesClientWithAPI(s3.New(sess), config.Bucket), nil
}

// NewSpacesClientWithAPI wraps an existing S3 API implementation
func NewSpacesClientWithAPI(api s3iface.S3API, bucket string) *SpacesClient {
	return &SpacesClient{s3Client: api, bucket: bucket}
}

// Put compresses doc and stores it under key
func (s *SpacesClient) Put(ctx context.Context, key string, doc []byte) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(doc); err != nil {
		return fmt.Errorf("failed to compress %s: %w", key, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress %s: %w", key, err)
	}

	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ACL:             aws.String("private"),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Fetch returns the document stored under key, decompressed
func (s *SpacesClient) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer out.Body.Close()

	if aws.StringValue(out.ContentEncoding) != "gzip" {
		return io.ReadAll(out.Body)
	}
	zr, err := gzip.NewReader(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", key, err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Delete removes key; deleting a missing key succeeds
func (s *SpacesClient) Delete(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// ArchiveKey builds a date-partitioned object key such as
// ingestions/2026/10/19/<id>.json
func ArchiveKey(prefix, id string, at time.Time) string {
	at = at.UTC()
	return path.Join(prefix, at.Format("2006/01/02"), id+".json")
}
