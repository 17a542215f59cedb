package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dggscli/internal/secret"
)

const (
	BackendS3    = "s3"
	BackendMinio = "minio"

	envPrefix = "DGGS"
)

// ErrConfig is matched by every error returned from Load and Validate.
var ErrConfig = errors.New("invalid configuration")

type Config struct {
	Log          LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
	Operations   Operations   `mapstructure:"operations" yaml:"operations" json:"operations"`
	DownloadData DownloadData `mapstructure:"download_data" yaml:"download_data" json:"download_data"`
}

type LogConfig struct {
	Level    string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Encoding string `mapstructure:"encoding" yaml:"encoding" json:"encoding" validate:"oneof=console json"`
}

type Operations struct {
	DownloadData  bool `mapstructure:"download_data" yaml:"download_data" json:"download_data"`
	ConvertToZarr bool `mapstructure:"convert_to_zarr" yaml:"convert_to_zarr" json:"convert_to_zarr"`
}

type MinioSettings struct {
	AccessKeyID     secret.String `mapstructure:"access_key_id" yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey secret.String `mapstructure:"secret_access_key" yaml:"secret_access_key" json:"secret_access_key"`
}

// Object is one requested entry: an exact key, or a key prefix when IsDir is set.
type Object struct {
	Path  string `mapstructure:"path" yaml:"path" json:"path" validate:"required"`
	IsDir bool   `mapstructure:"is_dir" yaml:"is_dir" json:"is_dir"`
}

func (o Object) String() string {
	if o.IsDir {
		return o.Path + " (dir)"
	}
	return o.Path
}

type DownloadData struct {
	BucketName      string        `mapstructure:"bucket_name" yaml:"bucket_name" json:"bucket_name" validate:"required,bucket"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint" validate:"required,url"`
	Region          string        `mapstructure:"region" yaml:"region" json:"region" validate:"required"`
	AllowHTTP       bool          `mapstructure:"allow_http" yaml:"allow_http" json:"allow_http"`
	Backend         string        `mapstructure:"backend" yaml:"backend" json:"backend" validate:"oneof=s3 minio"`
	Minio           MinioSettings `mapstructure:"minio_settings" yaml:"minio_settings" json:"minio_settings"`
	Objects         []Object      `mapstructure:"objects" yaml:"objects" json:"objects" validate:"dive"`
	OutputFolder    string        `mapstructure:"output_folder" yaml:"output_folder" json:"output_folder" validate:"required"`
	Workers         int           `mapstructure:"workers" yaml:"workers" json:"workers" validate:"min=1,max=64"`
	ContinueOnError bool          `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	PartSizeMB      int64         `mapstructure:"part_size_mb" yaml:"part_size_mb" json:"part_size_mb" validate:"min=0,max=5120"`
	Progress        bool          `mapstructure:"progress" yaml:"progress" json:"progress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")

	v.SetDefault("operations.download_data", false)
	v.SetDefault("operations.convert_to_zarr", false)

	v.SetDefault("download_data.bucket_name", "bucket_name")
	v.SetDefault("download_data.endpoint", "https://pangeo-eosc-minioapi.vm.fedcloud.eu")
	v.SetDefault("download_data.region", "us-east-1")
	v.SetDefault("download_data.allow_http", true)
	v.SetDefault("download_data.backend", BackendS3)
	v.SetDefault("download_data.minio_settings.access_key_id", "")
	v.SetDefault("download_data.minio_settings.secret_access_key", "")
	v.SetDefault("download_data.output_folder", "data")
	v.SetDefault("download_data.workers", 1)
	v.SetDefault("download_data.continue_on_error", false)
	v.SetDefault("download_data.part_size_mb", 0)
	v.SetDefault("download_data.progress", true)
}

// Load reads a TOML settings file, overlays environment variables and
// validates the result. A .env file in the working directory is loaded first
// when present.
//
// Every key can be overridden with DGGS_<SECTION>_<KEY>, e.g.
// DGGS_DOWNLOAD_DATA_BUCKET_NAME. Credentials missing from the file are also
// read from MINIO_ACCESS_KEY_ID and MINIO_SECRET_ACCESS_KEY; a value written
// in [download_data.minio_settings] takes precedence over those two.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read config file %s: %w", ErrConfig, path, err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindCredentialEnv(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode config file %s: %w", ErrConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func bindCredentialEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"download_data.minio_settings.access_key_id":     {"MINIO_ACCESS_KEY_ID", envPrefix + "_DOWNLOAD_DATA_MINIO_SETTINGS_ACCESS_KEY_ID"},
		"download_data.minio_settings.secret_access_key": {"MINIO_SECRET_ACCESS_KEY", envPrefix + "_DOWNLOAD_DATA_MINIO_SETTINGS_SECRET_ACCESS_KEY"},
	}
	for key, envs := range bindings {
		if v.InConfig(key) {
			continue
		}
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Redacted renders the configuration as YAML with credentials masked.
func (c *Config) Redacted() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}
