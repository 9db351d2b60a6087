package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/banditpipe/rewardcore/internal/compression"
	"github.com/banditpipe/rewardcore/internal/secrets"
)

// S3API is the subset of the S3 client the store needs, so tests can inject
// a mock instead of talking to AWS.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket               string
	Region               string
	Endpoint             string
	Compression          string // "gzip" (default), "bzip2", "none"
	AccessKeyIDSecret    string // name of the credential in the secrets store
	SecretAccessKeySecret string
	BufferType           string // "memory" (default) or "disk"
	DisableChecksums     bool
}

// S3Store is an objectstore.Store backed by Amazon S3.
type S3Store struct {
	cfg     S3Config
	secrets *secrets.Store

	// Client, if set, overrides client construction (test only).
	Client S3API
}

func NewS3Store(cfg S3Config, secretStore *secrets.Store) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("s3 store requires bucket and region")
	}
	if cfg.Compression == "" {
		cfg.Compression = "gzip"
	}
	return &S3Store{cfg: cfg, secrets: secretStore}, nil
}

func (s *S3Store) client(ctx context.Context) (S3API, error) {
	if s.Client != nil {
		return s.Client, nil
	}
	accessKey, err := s.secrets.Get(ctx, s.cfg.AccessKeyIDSecret)
	if err != nil {
		return nil, fmt.Errorf("missing AWS access key id credential %q: %w", s.cfg.AccessKeyIDSecret, err)
	}
	secretKey, err := s.secrets.Get(ctx, s.cfg.SecretAccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("missing AWS secret access key credential %q: %w", s.cfg.SecretAccessKeySecret, err)
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(s.cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(strings.TrimSpace(string(accessKey)), strings.TrimSpace(string(secretKey)), ""),
		),
	}
	if s.cfg.DisableChecksums {
		opts = append(opts, config.WithRequestChecksumCalculation(0))
		opts = append(opts, config.WithResponseChecksumValidation(0))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config load: %w", err)
	}
	s3Opts := []func(*s3.Options){}
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &s.cfg.Endpoint })
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	cli, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := cli.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.cfg.Bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return compression.NewReader(out.Body, s.cfg.Compression)
}

func (s *S3Store) PutLines(ctx context.Context, key string, lines [][]byte) error {
	cli, err := s.client(ctx)
	if err != nil {
		return err
	}

	var bufWriter io.Writer
	var file *os.File
	var buf *bytes.Buffer
	var closer io.Closer

	if s.cfg.BufferType == "disk" {
		f, err := os.CreateTemp("", "rewardcore-objectstore-*")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		file = f
		bufWriter = f
		closer = f
	} else {
		b := &bytes.Buffer{}
		buf = b
		bufWriter = b
		closer = io.NopCloser(nil)
	}

	comp, err := compression.NewWriter(bufWriter, s.cfg.Compression)
	if err != nil {
		if file != nil {
			file.Close()
			os.Remove(file.Name())
		}
		return err
	}

	for _, line := range lines {
		if _, err := comp.Write(line); err != nil {
			return fmt.Errorf("write line: %w", err)
		}
		if _, err := comp.Write([]byte("\n")); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}
	if err := comp.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}
	defer closer.Close()

	var reader io.ReadSeeker
	if file != nil {
		defer os.Remove(file.Name())
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		reader = file
	} else {
		reader = bytes.NewReader(buf.Bytes())
	}

	_, err = cli.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
		Body:   reader,
	})
	return err
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	cli, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	var out []ObjectMeta
	var token *string
	for {
		resp, err := cli.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.cfg.Bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range resp.Contents {
			size := int64(0)
			if obj.Size != nil {
				size = *obj.Size
			}
			out = append(out, ObjectMeta{Key: *obj.Key, Size: size})
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	cli, err := s.client(ctx)
	if err != nil {
		return err
	}
	const batchSize = 1000 // S3 DeleteObjects limit
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		objs := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			k := k
			objs = append(objs, types.ObjectIdentifier{Key: &k})
		}
		_, err := cli.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &s.cfg.Bucket,
			Delete: &types.Delete{Objects: objs},
		})
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
	}
	return nil
}
