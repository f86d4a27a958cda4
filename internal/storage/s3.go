// Package storage publishes and fetches dataset artifacts and raw files in
// an S3 compatible object store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"proteinshake/pkg/dataset"
	loaders3 "proteinshake/pkg/loader/s3"
	"proteinshake/pkg/logger"
)

type S3Params struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicEndpoint is the externally reachable base URL used for
	// download links. Optional.
	PublicEndpoint string
}

func NewS3Client(ctx context.Context, params S3Params) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(params.Region)}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}
	if params.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(params.AccessKey, params.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// Store is a dataset.ArtifactStore backed by one bucket.
type Store struct {
	client         *s3.Client
	bucket         string
	publicEndpoint string
}

func NewStore(client *s3.Client, params S3Params) *Store {
	return &Store{client: client, bucket: params.Bucket, publicEndpoint: params.PublicEndpoint}
}

func (s *Store) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", dataset.ErrArtifactNotFound, key)
		}
		return nil, fmt.Errorf("failed to get %s from S3: %w", key, err)
	}
	return out.Body, nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from S3: %w", key, err)
	}
	return nil
}

// DownloadLink presigns a GET of key against the public endpoint so the
// signature matches the host clients connect to.
func (s *Store) DownloadLink(ctx context.Context, key string, expires time.Duration) (string, error) {
	publicURL, err := url.Parse(s.publicEndpoint)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return "", fmt.Errorf("invalid public endpoint %q", s.publicEndpoint)
	}
	prefix := strings.TrimSuffix(publicURL.Path, "/")

	opts := s.client.Options()
	presigner := s3.NewPresignClient(s3.NewFromConfig(
		aws.Config{Region: opts.Region, Credentials: opts.Credentials, HTTPClient: opts.HTTPClient},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(publicURL.Scheme + "://" + publicURL.Host)
			o.UsePathStyle = true
		},
	))
	out, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}
	if prefix == "" {
		return out.URL, nil
	}
	signed, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned url: %w", err)
	}
	signed.Path = prefix + signed.Path
	return signed.String(), nil
}

// Source is a dataset.Source that mirrors every object below Prefix into
// the raw directory, keeping the relative layout.
type Source struct {
	client *s3.Client
	files  *loaders3.S3FileLoader
	bucket string
	prefix string
}

func NewSource(client *s3.Client, bucket, prefix string) *Source {
	return &Source{
		client: client,
		files:  loaders3.NewS3FileLoaderWithClient(bucket, client, false),
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/") + "/",
	}
}

func (s *Source) Download(ctx context.Context, rawDir string) error {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel, err := relativeKey(s.prefix, key)
			if err != nil {
				return err
			}
			if rel == "" {
				continue
			}
			if err := s.download(ctx, key, filepath.Join(rawDir, filepath.FromSlash(rel))); err != nil {
				return err
			}
			n++
		}
	}
	logger.Info("[Dataset] Downloaded raw files", "bucket", s.bucket, "prefix", s.prefix, "files", n)
	return nil
}

func (s *Source) download(ctx context.Context, key, dst string) error {
	data, err := s.files.ReadFile(ctx, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

// relativeKey strips prefix from key and rejects keys escaping the prefix.
// Directory placeholder keys map to "".
func relativeKey(prefix, key string) (string, error) {
	rel, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", fmt.Errorf("key %q outside prefix %q", key, prefix)
	}
	if rel == "" || strings.HasSuffix(rel, "/") {
		return "", nil
	}
	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("key %q escapes prefix", key)
	}
	return clean, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
