package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// S3 bucket naming, relaxed to accept underscores as MinIO gateways do.
var bucketNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)

// ValidationError lists every constraint the configuration violates.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfig, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrConfig
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("bucket", func(fl validator.FieldLevel) bool {
		return bucketNameRe.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks struct constraints and the cross-field rules, collecting
// all violations before returning.
func (c *Config) Validate() error {
	var violations []string

	err := newValidator().Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			tag := fe.Tag()
			if fe.Param() != "" {
				tag += "=" + fe.Param()
			}
			violations = append(violations, fmt.Sprintf("%s: %s", fieldPath(fe.Namespace()), tag))
		}
	} else if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	violations = append(violations, c.DownloadData.crossFieldViolations()...)

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (d DownloadData) crossFieldViolations() []string {
	var out []string

	// Malformed URLs are already reported by the url tag.
	if u, err := url.Parse(d.Endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		switch u.Scheme {
		case "https":
		case "http":
			if !d.AllowHTTP {
				out = append(out, "download_data.endpoint: plain http endpoint requires allow_http")
			}
		default:
			out = append(out, fmt.Sprintf("download_data.endpoint: unsupported scheme %q", u.Scheme))
		}
	}

	if d.Minio.AccessKeyID.IsZero() != d.Minio.SecretAccessKey.IsZero() {
		out = append(out, "download_data.minio_settings: access_key_id and secret_access_key must be set together")
	}

	if d.PartSizeMB > 0 && d.Backend == BackendMinio {
		out = append(out, "download_data.part_size_mb: ranged downloads are only supported by the s3 backend")
	}

	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
