package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dggscli/config"
	"dggscli/internal/objstore"
	"dggscli/internal/progress"
	"dggscli/internal/testutil"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

type recordedProgress struct {
	updates  []int64
	totals   []int64
	complete bool
}

type progressRecorder struct {
	mu   sync.Mutex
	keys map[string]*recordedProgress
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{keys: map[string]*recordedProgress{}}
}

func (r *progressRecorder) factory() progress.Factory {
	return func(key string, _ int64) progress.Tracker {
		r.mu.Lock()
		defer r.mu.Unlock()
		rec := &recordedProgress{}
		r.keys[key] = rec
		return &recordingTracker{mu: &r.mu, rec: rec}
	}
}

type recordingTracker struct {
	mu  *sync.Mutex
	rec *recordedProgress
}

func (t *recordingTracker) Update(n, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.updates = append(t.rec.updates, n)
	t.rec.totals = append(t.rec.totals, total)
}

func (t *recordingTracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.complete = true
}

func TestRun_SingleFile(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"some_file": []byte("hello world"),
	})
	out := t.TempDir()

	result, err := New(store, out).Run(context.Background(), []config.Object{{Path: "some_file"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"some_file"}, store.GetCalls())
	assert.Empty(t, store.ListCalls())
	assert.Equal(t, "hello world", readFile(t, filepath.Join(out, "some_bucket", "some_file")))

	require.Len(t, result.Items, 1)
	assert.Equal(t, "some_bucket", result.BucketName)
	assert.Equal(t, out, result.OutputFolder)
	assert.Equal(t, "some_file", result.Items[0].RequestedPath)
	assert.Equal(t, "some_file", result.Items[0].Key)
	assert.Equal(t, int64(11), result.Items[0].Size)
	assert.Equal(t, 1, result.TotalFiles)
	assert.Equal(t, int64(11), result.TotalSizeBytes)
	assert.Equal(t, "11 B", result.TotalSizeHuman)
}

func TestRun_Folder(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"some_folder/a.txt":     []byte("aaa"),
		"some_folder/sub/b.txt": []byte("bbbb"),
		"other/c.txt":           []byte("c"),
	})
	out := t.TempDir()

	result, err := New(store, out).Run(context.Background(), []config.Object{{Path: "some_folder", IsDir: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{"some_folder"}, store.ListCalls())
	assert.Equal(t, []string{"some_folder/a.txt", "some_folder/sub/b.txt"}, store.GetCalls())
	assert.Equal(t, "aaa", readFile(t, filepath.Join(out, "some_bucket", "some_folder", "a.txt")))
	assert.Equal(t, "bbbb", readFile(t, filepath.Join(out, "some_bucket", "some_folder", "sub", "b.txt")))
	assert.NoFileExists(t, filepath.Join(out, "some_bucket", "other", "c.txt"))

	require.Len(t, result.Items, 2)
	assert.Equal(t, "some_folder", result.Items[0].RequestedPath)
	assert.Equal(t, int64(7), result.TotalSizeBytes)
}

func TestRun_FileThenFolderInOrder(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"some_file":          []byte("1"),
		"some_folder/inside": []byte("2"),
	})

	result, err := New(store, t.TempDir()).Run(context.Background(), []config.Object{
		{Path: "some_file"},
		{Path: "some_folder", IsDir: true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"some_file", "some_folder/inside"}, store.GetCalls())
	assert.Equal(t, []string{"some_folder"}, store.ListCalls())
	require.Len(t, result.Items, 2)
	assert.Equal(t, "some_file", result.Items[0].Key)
	assert.Equal(t, "some_folder/inside", result.Items[1].Key)
}

func TestRun_EmptyListingIsNoop(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"other/x": []byte("x")})
	out := t.TempDir()

	result, err := New(store, out).Run(context.Background(), []config.Object{{Path: "some_folder/", IsDir: true}})
	require.NoError(t, err)

	assert.Empty(t, store.GetCalls())
	assert.Empty(t, result.Items)
	assert.DirExists(t, filepath.Join(out, "some_bucket"))
}

func TestRun_NoObjects(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", nil)

	result, err := New(store, t.TempDir()).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, store.GetCalls())
	assert.Empty(t, store.ListCalls())
	assert.Equal(t, 0, result.TotalFiles)
}

func TestRun_SkipsDirectoryMarkers(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"some_folder/":      nil,
		"some_folder/sub/":  nil,
		"some_folder/a.txt": []byte("a"),
	})

	_, err := New(store, t.TempDir()).Run(context.Background(), []config.Object{{Path: "some_folder/", IsDir: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"some_folder/a.txt"}, store.GetCalls())
}

func TestRun_RerunOverwrites(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"some_file": []byte("new")})
	out := t.TempDir()
	dest := filepath.Join(out, "some_bucket", "some_file")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, []byte("much longer old content"), 0o644))

	d := New(store, out)
	for i := 0; i < 2; i++ {
		_, err := d.Run(context.Background(), []config.Object{{Path: "some_file"}})
		require.NoError(t, err)
		assert.Equal(t, "new", readFile(t, dest))
	}
}

func TestRun_NotFoundCreatesNoFile(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", nil)
	out := t.TempDir()

	_, err := New(store, out).Run(context.Background(), []config.Object{{Path: "some_file"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrNotFound)

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Len(t, dlErr.Unwrap(), 1)
	assert.NoFileExists(t, filepath.Join(out, "some_bucket", "some_file"))
}

func TestRun_FailFast(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"good_before": []byte("1"),
		"good_after":  []byte("2"),
	})
	out := t.TempDir()

	result, err := New(store, out).Run(context.Background(), []config.Object{
		{Path: "good_before"},
		{Path: "missing"},
		{Path: "good_after"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrNotFound)

	assert.Equal(t, []string{"good_before", "missing"}, store.GetCalls())
	assert.FileExists(t, filepath.Join(out, "some_bucket", "good_before"))
	assert.NoFileExists(t, filepath.Join(out, "some_bucket", "good_after"))
	require.NotNil(t, result)
	assert.Equal(t, 1, result.TotalFiles)
}

func TestRun_FailFastOnListing(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"some_file": []byte("1")})
	store.ListError = fmt.Errorf("%w: access denied", objstore.ErrConnection)

	_, err := New(store, t.TempDir()).Run(context.Background(), []config.Object{
		{Path: "some_folder", IsDir: true},
		{Path: "some_file"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrConnection)
	assert.Empty(t, store.GetCalls())
}

func TestRun_ContinueOnError(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"some_file":   []byte("ok"),
		"dir/one.bin": []byte("one"),
	})
	store.GetErrors = map[string]error{
		"dir/one.bin": fmt.Errorf("%w: timeout", objstore.ErrConnection),
	}
	out := t.TempDir()

	result, err := New(store, out, WithContinueOnError(true)).Run(context.Background(), []config.Object{
		{Path: "missing_first"},
		{Path: "some_file"},
		{Path: "dir/", IsDir: true},
		{Path: "missing_last"},
	})
	require.Error(t, err)

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	require.Len(t, dlErr.Unwrap(), 3)
	assert.ErrorIs(t, dlErr.First(), objstore.ErrNotFound)
	assert.Contains(t, dlErr.First().Error(), "missing_first")
	assert.ErrorIs(t, dlErr.Unwrap()[1], objstore.ErrConnection)
	assert.Contains(t, dlErr.Unwrap()[2].Error(), "missing_last")
	assert.Contains(t, err.Error(), "3 errors")

	assert.Equal(t, []string{"missing_first", "some_file", "dir/one.bin", "missing_last"}, store.GetCalls())
	assert.Equal(t, "ok", readFile(t, filepath.Join(out, "some_bucket", "some_file")))
	assert.Equal(t, 1, result.TotalFiles)
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	objects := map[string][]byte{}
	for i := 0; i < 25; i++ {
		objects[fmt.Sprintf("tiles/%02d.bin", i)] = []byte(fmt.Sprintf("tile-%02d-payload", i))
	}
	req := []config.Object{{Path: "tiles/", IsDir: true}}

	seqOut := t.TempDir()
	seq, err := New(testutil.NewMemStore("some_bucket", objects), seqOut).Run(context.Background(), req)
	require.NoError(t, err)

	parOut := t.TempDir()
	par, err := New(testutil.NewMemStore("some_bucket", objects), parOut, WithWorkers(8)).Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, par.Items, 25)
	for i := range seq.Items {
		assert.Equal(t, seq.Items[i].Key, par.Items[i].Key)
		assert.Equal(t, seq.Items[i].Size, par.Items[i].Size)
	}
	for key, data := range objects {
		assert.Equal(t, string(data), readFile(t, filepath.Join(parOut, "some_bucket", filepath.FromSlash(key))))
	}
}

func TestRun_ParallelFailFast(t *testing.T) {
	objects := map[string][]byte{}
	for i := 0; i < 10; i++ {
		objects[fmt.Sprintf("tiles/%02d.bin", i)] = []byte("x")
	}
	store := testutil.NewMemStore("some_bucket", objects)
	store.GetErrors = map[string]error{"tiles/03.bin": fmt.Errorf("%w: reset", objstore.ErrConnection)}

	_, err := New(store, t.TempDir(), WithWorkers(4)).Run(context.Background(), []config.Object{{Path: "tiles/", IsDir: true}})
	require.Error(t, err)

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Len(t, dlErr.Unwrap(), 1)
	assert.Contains(t, dlErr.First().Error(), "tiles/03.bin")
}

func TestRun_CancelledContext(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"some_file": []byte("x")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store, t.TempDir()).Run(ctx, []config.Object{{Path: "some_file"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrConnection)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_OutputFolderNotCreatable(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "data")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	_, err := New(testutil.NewMemStore("some_bucket", nil), blocker).Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
}

func TestRun_LocalWriteFailure(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"a":   []byte("file"),
		"a/b": []byte("nested under a file"),
	})

	_, err := New(store, t.TempDir()).Run(context.Background(), []config.Object{{Path: "a"}, {Path: "a/b"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
}

func TestRun_RejectsEscapingKeys(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"../escape": []byte("x")})
	out := t.TempDir()

	_, err := New(store, out).Run(context.Background(), []config.Object{{Path: "../escape"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Empty(t, store.GetCalls())
	assert.NoFileExists(t, filepath.Join(out, "escape"))
}

func TestDownloadFile_InterruptedBodyLeavesPartialFile(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"big.bin": []byte("0123456789")})
	store.BodyErrors = map[string]error{"big.bin": testutil.ErrBodyInterrupted}
	out := t.TempDir()

	_, err := New(store, out).DownloadFile(context.Background(), "big.bin")
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrConnection)
	assert.ErrorIs(t, err, testutil.ErrBodyInterrupted)
	assert.Equal(t, "0123", readFile(t, filepath.Join(out, "some_bucket", "big.bin")))
}

func TestDownloadFile_ReportsProgress(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"some_file": []byte("hello world")})
	rec := newProgressRecorder()

	item, err := New(store, t.TempDir(), WithProgress(rec.factory())).DownloadFile(context.Background(), "some_file")
	require.NoError(t, err)
	assert.Equal(t, int64(11), item.Size)

	got := rec.keys["some_file"]
	require.NotNil(t, got)
	assert.Equal(t, []int64{4, 8, 11}, got.updates)
	assert.Equal(t, []int64{11, 11, 11}, got.totals)
	assert.True(t, got.complete)
}

func TestDownloadFile_UnknownSize(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"some_file": []byte("hello")})
	store.HideSize = true
	rec := newProgressRecorder()

	item, err := New(store, t.TempDir(), WithProgress(rec.factory())).DownloadFile(context.Background(), "some_file")
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.Size)
	assert.Equal(t, []int64{-1, -1}, rec.keys["some_file"].totals)
}

func TestDownloadFile_EmptyObject(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{"empty": {}})
	out := t.TempDir()

	item, err := New(store, out).DownloadFile(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, int64(0), item.Size)
	assert.Equal(t, "", readFile(t, filepath.Join(out, "some_bucket", "empty")))
}

func TestDownloadFile_Ranged(t *testing.T) {
	srv := testutil.NewS3Server("some_bucket", map[string][]byte{
		"tiles/big.bin": []byte("ranged payload"),
	}, 0)
	defer srv.Close()

	store, err := objstore.New(context.Background(), config.DownloadData{
		BucketName: "some_bucket",
		Endpoint:   srv.URL,
		Region:     "us-east-1",
		AllowHTTP:  true,
		Backend:    config.BackendS3,
		PartSizeMB: 5,
	})
	require.NoError(t, err)
	out := t.TempDir()
	d := New(store, out)

	item, err := d.DownloadFile(context.Background(), "tiles/big.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(14), item.Size)
	assert.Equal(t, "ranged payload", readFile(t, filepath.Join(out, "some_bucket", "tiles", "big.bin")))

	_, err = d.DownloadFile(context.Background(), "missing.bin")
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(out, "some_bucket", "missing.bin"))
}

func TestResolve(t *testing.T) {
	store := testutil.NewMemStore("some_bucket", map[string][]byte{
		"some_folder/":   nil,
		"some_folder/a":  []byte("a"),
		"some_folder/b":  []byte("b"),
		"some_folderish": []byte("c"),
	})
	d := New(store, t.TempDir())

	keys, err := d.Resolve(context.Background(), config.Object{Path: "exact/key"})
	require.NoError(t, err)
	assert.Equal(t, []string{"exact/key"}, keys)
	assert.Empty(t, store.ListCalls())

	keys, err = d.Resolve(context.Background(), config.Object{Path: "some_folder/", IsDir: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"some_folder/a", "some_folder/b"}, keys)

	store.ListError = errors.New("boom")
	_, err = d.Resolve(context.Background(), config.Object{Path: "some_folder/", IsDir: true})
	assert.Error(t, err)
}

func TestLocalPath(t *testing.T) {
	d := New(testutil.NewMemStore("some_bucket", nil), "data")

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "some_file", want: filepath.Join("data", "some_bucket", "some_file")},
		{key: "a/b/c.zarr", want: filepath.Join("data", "some_bucket", "a", "b", "c.zarr")},
		{key: "", wantErr: true},
		{key: "dir/", wantErr: true},
		{key: "../up", wantErr: true},
		{key: "a/../../up", wantErr: true},
		{key: "a/../b", wantErr: true},
		{key: "/abs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := d.LocalPath(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDownloadError(t *testing.T) {
	single := newDownloadError(objstore.ErrNotFound)
	assert.Equal(t, "download failed: object not found", single.Error())
	assert.Equal(t, objstore.ErrNotFound, single.First())

	multi := newDownloadError(ErrIO, objstore.ErrNotFound)
	assert.Len(t, multi.Unwrap(), 2)
	assert.ErrorIs(t, multi, ErrIO)
	assert.ErrorIs(t, multi, objstore.ErrNotFound)
	assert.Equal(t, ErrIO, multi.First())
}

// fixedListing returns the same listing for every prefix.
type fixedListing struct {
	*testutil.MemStore
	listing []objstore.ObjectInfo
}

func (f *fixedListing) ListObjects(ctx context.Context, prefix string) ([]objstore.ObjectInfo, error) {
	_, _ = f.MemStore.ListObjects(ctx, prefix)
	return f.listing, nil
}

func TestRun_FolderListingReturnsUnprefixedKey(t *testing.T) {
	mem := testutil.NewMemStore("some_bucket", map[string][]byte{"some_file": []byte("listed")})
	store := &fixedListing{MemStore: mem, listing: []objstore.ObjectInfo{{Key: "some_file", Size: 6}}}
	out := filepath.Join(t.TempDir(), "tmp")

	_, err := New(store, out).Run(context.Background(), []config.Object{{Path: "some_folder", IsDir: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{"some_folder"}, mem.ListCalls())
	assert.Equal(t, []string{"some_file"}, mem.GetCalls())
	assert.Equal(t, "listed", readFile(t, filepath.Join(out, "some_bucket", "some_file")))
}
