package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dggscli/config"
	"dggscli/internal/objstore"
	"dggscli/internal/progress"
	"dggscli/internal/testutil"
)

func testConfig(out string) *config.Config {
	return &config.Config{
		Log: config.LogConfig{Level: "info", Encoding: "console"},
		DownloadData: config.DownloadData{
			BucketName:   "some_bucket",
			Endpoint:     "https://some_endpoint.com",
			Region:       "us-east-1",
			AllowHTTP:    true,
			Backend:      config.BackendS3,
			OutputFolder: out,
			Workers:      1,
			Minio: config.MinioSettings{
				AccessKeyID:     "key-id-value",
				SecretAccessKey: "secret-value",
			},
		},
	}
}

func opener(store objstore.Store, calls *int) StoreOpener {
	return func(context.Context, config.DownloadData) (objstore.Store, error) {
		*calls++
		return store, nil
	}
}

func observed() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestRun_EmptyOperations(t *testing.T) {
	log, logs := observed()
	opens := 0

	report, err := New(testConfig(t.TempDir()),
		WithLogger(log),
		WithStoreOpener(opener(testutil.NewMemStore("some_bucket", nil), &opens)),
	).Run(context.Background())
	require.NoError(t, err)

	assert.Nil(t, report.Download)
	assert.Equal(t, 0, opens)

	entries := logs.All()
	require.NotEmpty(t, entries)
	assert.Equal(t, StartMessage, entries[0].Message)
}

func TestRun_LogsRedactedConfig(t *testing.T) {
	log, logs := observed()

	_, err := New(testConfig(t.TempDir()), WithLogger(log)).Run(context.Background())
	require.NoError(t, err)

	dump := logs.FilterMessageSnippet("Configuration:").All()
	require.Len(t, dump, 1)
	assert.Contains(t, dump[0].Message, "bucket_name: some_bucket")
	for _, e := range logs.All() {
		assert.NotContains(t, e.Message, "secret-value")
		assert.NotContains(t, e.Message, "key-id-value")
	}
}

func TestRun_Download(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig(out)
	cfg.Operations.DownloadData = true
	cfg.DownloadData.Objects = []config.Object{
		{Path: "some_file"},
		{Path: "some_folder", IsDir: true},
	}
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"some_file":          []byte("file"),
		"some_folder/nested": []byte("nested"),
	})
	opens := 0

	report, err := New(cfg, WithStoreOpener(opener(store, &opens)), WithProgress(progress.Nop())).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, opens)
	require.NotNil(t, report.Download)
	assert.Equal(t, 2, report.Download.TotalFiles)
	assert.Equal(t, []string{"some_file", "some_folder/nested"}, store.GetCalls())
	assert.Equal(t, []string{"some_folder"}, store.ListCalls())
	assert.FileExists(t, filepath.Join(out, "some_bucket", "some_folder", "nested"))
}

func TestRun_DownloadFailure(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Operations.DownloadData = true
	cfg.Operations.ConvertToZarr = true
	cfg.DownloadData.Objects = []config.Object{{Path: "missing"}}
	log, logs := observed()
	opens := 0

	report, err := New(cfg,
		WithLogger(log),
		WithStoreOpener(opener(testutil.NewMemStore("some_bucket", nil), &opens)),
	).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
	require.NotNil(t, report)
	assert.Equal(t, 0, logs.FilterMessageSnippet("Zarr").Len())
}

func TestRun_StoreOpenFailure(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Operations.DownloadData = true
	openErr := fmt.Errorf("%w: bad endpoint", objstore.ErrConnection)

	_, err := New(cfg, WithStoreOpener(func(context.Context, config.DownloadData) (objstore.Store, error) {
		return nil, openErr
	})).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, objstore.ErrConnection))
}

func TestRun_ZarrPlaceholder(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Operations.ConvertToZarr = true
	log, logs := observed()

	report, err := New(cfg, WithLogger(log)).Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.Download)
	assert.Equal(t, 1, logs.FilterMessageSnippet("Zarr conversion is not implemented").Len())
}

func TestNew_ProgressFromConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.DownloadData.Progress = false
	p := New(cfg)
	assert.NotNil(t, p.progress)

	cfg.DownloadData.Progress = true
	p = New(cfg)
	assert.NotNil(t, p.progress)
}
