// Package downloader copies requested keys and key prefixes from an object
// store to <output_folder>/<bucket>/<key>.
package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dggscli/config"
	"dggscli/internal/models"
	"dggscli/internal/objstore"
	"dggscli/internal/progress"
	"dggscli/pkg/utils"
)

const bufferSize = 64 * 1024

var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, bufferSize)
		return &buf
	},
}

type Downloader struct {
	store           objstore.Store
	outputFolder    string
	root            string
	workers         int
	continueOnError bool
	progress        progress.Factory
	log             *zap.SugaredLogger
}

type Option func(*Downloader)

// WithWorkers bounds the number of files downloaded at once.
func WithWorkers(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithContinueOnError makes Run attempt every file and report all failures.
func WithContinueOnError(enabled bool) Option {
	return func(d *Downloader) {
		d.continueOnError = enabled
	}
}

func WithProgress(f progress.Factory) Option {
	return func(d *Downloader) {
		if f != nil {
			d.progress = f
		}
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(d *Downloader) {
		if log != nil {
			d.log = log
		}
	}
}

func New(store objstore.Store, outputFolder string, opts ...Option) *Downloader {
	d := &Downloader{
		store:        store,
		outputFolder: outputFolder,
		root:         filepath.Join(outputFolder, store.Bucket()),
		workers:      1,
		progress:     progress.Nop(),
		log:          zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns <output_folder>/<bucket>.
func (d *Downloader) Root() string {
	return d.root
}

type slot struct {
	item *models.DownloadItem
	err  error
}

// Run downloads every requested object in order. Prefixes are listed one at
// a time; the files they expand to are fetched by up to workers goroutines,
// or inline when workers is 1.
//
// On failure the returned result still describes the files written so far.
func (d *Downloader) Run(ctx context.Context, objects []config.Object) (*models.DownloadResult, error) {
	start := time.Now()

	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return nil, newDownloadError(ioError("create", d.root, err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		g        errgroup.Group
		slots    []*slot
		mu       sync.Mutex
		firstErr error
	)
	g.SetLimit(d.workers)

	fail := func(s *slot, err error) {
		s.err = err
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		if !d.continueOnError {
			cancel()
		}
	}

resolve:
	for _, obj := range objects {
		if runCtx.Err() != nil {
			break
		}

		keys, err := d.Resolve(runCtx, obj)
		if err != nil {
			s := &slot{}
			slots = append(slots, s)
			fail(s, err)
			continue
		}
		if obj.IsDir && len(keys) == 0 {
			d.log.Infow("No objects found under prefix", "prefix", obj.Path)
		}

		for _, key := range keys {
			if runCtx.Err() != nil {
				break resolve
			}
			s := &slot{}
			slots = append(slots, s)
			fetch := func() error {
				if runCtx.Err() != nil {
					return nil
				}
				item, err := d.download(runCtx, obj.Path, key)
				if err != nil {
					fail(s, err)
					return nil
				}
				s.item = item
				return nil
			}
			if d.workers == 1 {
				_ = fetch()
				continue
			}
			g.Go(fetch)
		}
	}
	_ = g.Wait()

	result := &models.DownloadResult{
		BucketName:    d.store.Bucket(),
		OutputFolder:  d.outputFolder,
		Items:         []models.DownloadItem{},
		OperationTime: utils.FormatTime(start),
	}
	var errs []error
	for _, s := range slots {
		if s.item != nil {
			result.Items = append(result.Items, *s.item)
			result.TotalSizeBytes += s.item.Size
		}
		if s.err != nil && d.continueOnError {
			errs = append(errs, s.err)
		}
	}
	result.TotalFiles = len(result.Items)
	result.TotalSizeHuman = utils.FormatBytes(result.TotalSizeBytes)
	result.DownloadDuration = utils.FormatDuration(time.Since(start))

	if !d.continueOnError && firstErr != nil {
		errs = []error{firstErr}
	}
	if len(errs) == 0 && ctx.Err() != nil {
		errs = []error{fmt.Errorf("%w: %w", objstore.ErrConnection, ctx.Err())}
	}
	if len(errs) > 0 {
		return result, newDownloadError(errs...)
	}
	return result, nil
}

// Resolve returns the keys obj stands for: the path itself, or every key
// listed under the prefix. Directory markers are dropped.
func (d *Downloader) Resolve(ctx context.Context, obj config.Object) ([]string, error) {
	if !obj.IsDir {
		return []string{obj.Path}, nil
	}

	infos, err := d.store.ListObjects(ctx, obj.Path)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Key, "/") {
			d.log.Debugw("Skipping directory marker", "key", info.Key)
			continue
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// DownloadFile fetches a single key, overwriting any previous local copy.
func (d *Downloader) DownloadFile(ctx context.Context, key string) (*models.DownloadItem, error) {
	return d.download(ctx, key, key)
}

func (d *Downloader) download(ctx context.Context, requested, key string) (*models.DownloadItem, error) {
	start := time.Now()

	dest, err := d.LocalPath(key)
	if err != nil {
		return nil, err
	}

	var size int64
	if ranged, ok := d.store.(objstore.RangedDownloader); ok {
		size, err = d.fetchRanged(ctx, ranged, key, dest)
	} else {
		size, err = d.fetchStream(ctx, key, dest)
	}
	if err != nil {
		return nil, err
	}

	item := &models.DownloadItem{
		RequestedPath: requested,
		Key:           key,
		LocalPath:     dest,
		Size:          size,
		Duration:      utils.FormatDuration(time.Since(start)),
	}
	d.log.Debugw("Downloaded object", "key", key, "path", dest, "bytes", size, "duration", item.Duration)
	return item, nil
}

func (d *Downloader) fetchStream(ctx context.Context, key, dest string) (int64, error) {
	obj, err := d.store.GetObject(ctx, key)
	if err != nil {
		return 0, err
	}
	defer obj.Body.Close()

	d.log.Infow("Downloading object",
		"key", key,
		"size", utils.FormatMegabytes(obj.Size),
		"path", dest,
	)

	f, err := createFile(dest)
	if err != nil {
		return 0, err
	}

	tracker := d.progress(key, obj.Size)
	n, copyErr := d.copyBody(f, obj.Body, tracker, key, dest, obj.Size)
	closeErr := f.Close()
	if copyErr != nil {
		return n, copyErr
	}
	if closeErr != nil {
		return n, ioError("close", dest, closeErr)
	}
	tracker.Complete()
	return n, nil
}

// copyBody streams src into dst through one pooled buffer, reporting
// progress after every chunk.
func (d *Downloader) copyBody(dst io.Writer, src io.Reader, tracker progress.Tracker, key, dest string, size int64) (int64, error) {
	bufPtr := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufPtr)
	buf := *bufPtr

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, ioError("write", dest, err)
			}
			written += int64(n)
			tracker.Update(written, size)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, &objstore.Error{
				Op:     "read",
				Bucket: d.store.Bucket(),
				Key:    key,
				Err:    fmt.Errorf("%w: %w", objstore.ErrConnection, readErr),
			}
		}
	}
}

func (d *Downloader) fetchRanged(ctx context.Context, ranged objstore.RangedDownloader, key, dest string) (int64, error) {
	d.log.Infow("Downloading object in parts", "key", key, "path", dest)

	w := &lazyFileWriter{path: dest, tracker: d.progress(key, -1)}
	n, err := ranged.DownloadTo(ctx, key, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}

	// Empty objects produce no writes.
	if w.f == nil {
		f, err := createFile(dest)
		if err != nil {
			return 0, err
		}
		if err := f.Close(); err != nil {
			return 0, ioError("close", dest, err)
		}
	}
	w.tracker.Complete()
	return n, nil
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioError("create directory", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, ioError("create", path, err)
	}
	return f, nil
}

// lazyFileWriter opens the destination on the first part so a failed
// request leaves nothing behind.
type lazyFileWriter struct {
	path    string
	tracker progress.Tracker

	mu      sync.Mutex
	f       *os.File
	written int64
}

func (w *lazyFileWriter) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		f, err := createFile(w.path)
		if err != nil {
			return 0, err
		}
		w.f = f
	}

	n, err := w.f.WriteAt(p, off)
	w.written += int64(n)
	w.tracker.Update(w.written, -1)
	if err != nil {
		return n, ioError("write", w.path, err)
	}
	return n, nil
}

func (w *lazyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	if err := w.f.Close(); err != nil {
		return ioError("close", w.path, err)
	}
	return nil
}
