package downloader

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LocalPath maps key to <output_folder>/<bucket>/<key>.
func (d *Downloader) LocalPath(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || strings.HasSuffix(key, "/") || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q does not name a file below %s", ErrInvalidKey, key, d.root)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q contains a parent reference", ErrInvalidKey, key)
		}
	}
	return filepath.Join(d.root, rel), nil
}
