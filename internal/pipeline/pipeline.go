// Package pipeline sequences the operations enabled in the [operations]
// section: data download, then Zarr conversion.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"dggscli/config"
	"dggscli/internal/downloader"
	"dggscli/internal/models"
	"dggscli/internal/objstore"
	"dggscli/internal/progress"
)

const StartMessage = "Running EOPF-DDGGS data processing pipeline"

// StoreOpener builds the object store for the download operation.
type StoreOpener func(ctx context.Context, cfg config.DownloadData) (objstore.Store, error)

type Pipeline struct {
	cfg       *config.Config
	log       *zap.SugaredLogger
	openStore StoreOpener
	progress  progress.Factory
}

type Option func(*Pipeline)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

func WithStoreOpener(open StoreOpener) Option {
	return func(p *Pipeline) {
		if open != nil {
			p.openStore = open
		}
	}
}

// WithProgress overrides the progress display chosen by download_data.progress.
func WithProgress(f progress.Factory) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.progress = f
		}
	}
}

func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		log:       zap.NewNop().Sugar(),
		openStore: objstore.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.progress == nil {
		if cfg.DownloadData.Progress {
			p.progress = progress.Bars(os.Stderr)
		} else {
			p.progress = progress.Nop()
		}
	}
	return p
}

// Report is what a run produced. Download is nil when the operation is off.
type Report struct {
	Download *models.DownloadResult `json:"download,omitempty"`
}

func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	p.log.Info(StartMessage)

	dump, err := p.cfg.Redacted()
	if err != nil {
		return nil, err
	}
	p.log.Infof("Configuration:\n%s", dump)

	report := &Report{}

	if p.cfg.Operations.DownloadData {
		result, err := p.download(ctx)
		report.Download = result
		if err != nil {
			return report, err
		}
	} else {
		p.log.Debug("Operation download_data disabled")
	}

	if p.cfg.Operations.ConvertToZarr {
		// TODO: convert the downloaded products once the DGGS Zarr writer exists.
		p.log.Warn("Zarr conversion is not implemented yet, skipping")
	} else {
		p.log.Debug("Operation convert_to_zarr disabled")
	}

	return report, nil
}

func (p *Pipeline) download(ctx context.Context) (*models.DownloadResult, error) {
	dd := p.cfg.DownloadData

	store, err := p.openStore(ctx, dd)
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	d := downloader.New(store, dd.OutputFolder,
		downloader.WithWorkers(dd.Workers),
		downloader.WithContinueOnError(dd.ContinueOnError),
		downloader.WithProgress(p.progress),
		downloader.WithLogger(p.log),
	)

	p.log.Infow("Downloading data",
		"bucket", dd.BucketName,
		"endpoint", dd.Endpoint,
		"objects", len(dd.Objects),
		"destination", d.Root(),
	)

	result, err := d.Run(ctx, dd.Objects)
	if err != nil {
		return result, err
	}

	p.log.Infow("Download finished",
		"files", result.TotalFiles,
		"size", result.TotalSizeHuman,
		"duration", result.DownloadDuration,
	)
	return result, nil
}
