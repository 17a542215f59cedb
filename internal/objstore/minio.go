package objstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	appConfig "dggscli/config"
)

type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

func newMinioClient(endpoint *url.URL, cfg appConfig.DownloadData) (*minio.Client, error) {
	creds := credentials.NewStaticV4(
		cfg.Minio.AccessKeyID.Reveal(),
		cfg.Minio.SecretAccessKey.Reveal(),
		"",
	)

	cli, err := minio.New(endpoint.Host, &minio.Options{
		Creds:        creds,
		Secure:       endpoint.Scheme == "https",
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return cli, nil
}

func (s *MinioStore) Bucket() string {
	return s.bucket
}

func (s *MinioStore) GetObject(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, newError("get", s.bucket, key, classifyMinioError(err), err)
	}

	// GetObject is lazy; Stat issues the request and surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, newError("get", s.bucket, key, classifyMinioError(err), err)
	}

	return &Object{Key: key, Size: info.Size, Body: obj}, nil
}

func (s *MinioStore) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []ObjectInfo
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, newError("list", s.bucket, prefix, classifyMinioError(info.Err), info.Err)
		}
		objects = append(objects, ObjectInfo{Key: info.Key, Size: info.Size})
	}

	return objects, nil
}

func classifyMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return ErrNotFound
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrConnection
}
