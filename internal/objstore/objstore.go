package objstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	appConfig "dggscli/config"
)

const bytesPerMB = 1024 * 1024

// New builds the store selected by cfg.Backend. No request is sent; a bad
// endpoint or credentials surface on the first call.
func New(ctx context.Context, cfg appConfig.DownloadData) (Store, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, newError("open", cfg.BucketName, "", ErrConnection, err)
	}
	if endpoint.Host == "" {
		return nil, newError("open", cfg.BucketName, "", ErrConnection, fmt.Errorf("endpoint %q has no host", cfg.Endpoint))
	}
	switch endpoint.Scheme {
	case "https":
	case "http":
		if !cfg.AllowHTTP {
			return nil, newError("open", cfg.BucketName, "", ErrConnection, errors.New("plain http endpoint refused, set allow_http"))
		}
	default:
		return nil, newError("open", cfg.BucketName, "", ErrConnection, fmt.Errorf("unsupported endpoint scheme %q", endpoint.Scheme))
	}

	switch cfg.Backend {
	case appConfig.BackendMinio:
		cli, err := newMinioClient(endpoint, cfg)
		if err != nil {
			return nil, newError("open", cfg.BucketName, "", ErrConnection, err)
		}
		return NewMinioStore(cli, cfg.BucketName), nil
	case appConfig.BackendS3, "":
		cli, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, newError("open", cfg.BucketName, "", ErrConnection, err)
		}
		if cfg.PartSizeMB > 0 {
			return NewRangedS3Store(cli, cfg.BucketName, cfg.PartSizeMB*bytesPerMB), nil
		}
		return NewS3Store(cli, cfg.BucketName), nil
	default:
		return nil, newError("open", cfg.BucketName, "", ErrConnection, fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}
