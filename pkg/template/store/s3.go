package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the narrow slice of the S3 client the store needs; tests stub
// it instead of talking to AWS.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures the s3 backend. Region, Endpoint, AccessKey, and
// SecretKey fall back to the standard AWS environment/config chain when
// empty.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Store keeps one object per template at <prefix>/<id>.json.
type S3Store struct {
	client ObjectAPI
	bucket string
	prefix string
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds a client from opts and the default AWS config chain.
func NewS3Store(opts S3Options) (*S3Store, error) {
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithBaseEndpoint(opts.Endpoint))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return NewS3StoreWithClient(client, opts.Bucket, opts.Prefix), nil
}

// NewS3StoreWithClient wraps an existing client; used by tests.
func NewS3StoreWithClient(client ObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) key(id string) string {
	if s.prefix == "" {
		return id + ".json"
	}
	return s.prefix + "/" + id + ".json"
}

// List pages through the bucket and returns every template id, sorted.
func (s *S3Store) List() ([]string, error) {
	ctx := context.Background()
	var ids []string
	var token *string

	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing templates: %w", err)
		}
		for _, object := range out.Contents {
			key := aws.ToString(object.Key)
			key = strings.TrimPrefix(key, prefix)
			if !strings.HasSuffix(key, ".json") || strings.Contains(key, "/") {
				continue
			}
			ids = append(ids, strings.TrimSuffix(key, ".json"))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(ids)
	return ids, nil
}

// Save uploads the payload, refusing to overwrite an existing object.
func (s *S3Store) Save(id string, payload []byte) error {
	ctx := context.Background()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err == nil {
		return AlreadyExists(id)
	}
	if !isNotFound(err) {
		return fmt.Errorf("checking template %q: %w", id, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading template %q: %w", id, err)
	}
	return nil
}

// Load downloads the payload stored under id.
func (s *S3Store) Load(id string) ([]byte, error) {
	ctx := context.Background()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, NotFound(id)
		}
		return nil, fmt.Errorf("downloading template %q: %w", id, err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading template %q: %w", id, err)
	}
	return payload, nil
}

// Delete removes the object. S3 delete is idempotent, matching the
// best-effort contract.
func (s *S3Store) Delete(id string) error {
	ctx := context.Background()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("deleting template %q: %w", id, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
