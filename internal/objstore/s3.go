package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	appConfig "dggscli/config"
)

// S3API is the subset of *s3.Client used here; tests substitute it.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Store struct {
	api    S3API
	bucket string
}

func NewS3Store(api S3API, bucket string) *S3Store {
	return &S3Store{api: api, bucket: bucket}
}

// RangedS3Store is an S3Store that also fetches whole objects in ranged
// parts of PartSize bytes.
type RangedS3Store struct {
	*S3Store
	partSize int64
}

var _ RangedDownloader = (*RangedS3Store)(nil)

func NewRangedS3Store(api S3API, bucket string, partSize int64) *RangedS3Store {
	return &RangedS3Store{S3Store: NewS3Store(api, bucket), partSize: partSize}
}

func newS3Client(ctx context.Context, cfg appConfig.DownloadData) (*s3.Client, error) {
	var provider aws.CredentialsProvider = aws.AnonymousCredentials{}
	if !cfg.Minio.AccessKeyID.IsZero() {
		provider = credentials.NewStaticCredentialsProvider(
			cfg.Minio.AccessKeyID.Reveal(),
			cfg.Minio.SecretAccessKey.Reveal(),
			"",
		)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
		// Third-party stores rarely return the flexible checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

func (s *S3Store) Bucket() string {
	return s.bucket
}

func (s *S3Store) GetObject(ctx context.Context, key string) (*Object, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, newError("get", s.bucket, key, classifyS3Error(err), err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}

	return &Object{Key: key, Size: size, Body: out.Body}, nil
}

func (s *S3Store) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, newError("list", s.bucket, prefix, classifyS3Error(err), err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	return objects, nil
}

// DownloadTo fetches key one part at a time, writing each at its offset.
func (s *RangedS3Store) DownloadTo(ctx context.Context, key string, w io.WriterAt) (int64, error) {
	if s.partSize <= 0 {
		return 0, newError("download", s.bucket, key, ErrConnection, fmt.Errorf("invalid part size %d", s.partSize))
	}

	downloader := manager.NewDownloader(s.api, func(d *manager.Downloader) {
		d.PartSize = s.partSize
		d.Concurrency = 1
	})

	n, err := downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, newError("download", s.bucket, key, classifyS3Error(err), err)
	}
	return n, nil
}

func classifyS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return ErrNotFound
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return ErrNotFound
	}

	return ErrConnection
}
