package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ownerFile marks a dataset directory as created by a CacheDir. Only marked
// directories are ever deleted.
const ownerFile = ".volstream-cache"

// CacheDir persists fetched remote payloads on local disk. Files are laid
// out as <root>/<dataset>/L<level>/<hash of url and range>. The root may be
// shared with unrelated files.
type CacheDir struct {
	root string
}

// NewCacheDir returns a cache rooted at dir. A leading ~ is expanded to the
// user's home directory. The directory is created on first write.
func NewCacheDir(dir string) (*CacheDir, error) {
	if dir == "" {
		return nil, errors.New("loader: empty cache dir")
	}
	root, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("loader: cache dir: %w", err)
	}
	return &CacheDir{root: filepath.Clean(root)}, nil
}

// Root returns the expanded cache root.
func (c *CacheDir) Root() string { return c.root }

// path returns the cache file for a request.
func (c *CacheDir) path(r Request) string {
	sum := sha256.Sum256([]byte(r.key()))
	return filepath.Join(c.root, datasetDir(r.Dataset), "L"+strconv.Itoa(r.Level), hex.EncodeToString(sum[:16]))
}

// Read returns a cached payload. A missing entry returns fs.ErrNotExist.
func (c *CacheDir) Read(r Request) ([]byte, error) {
	data, err := os.ReadFile(c.path(r))
	if err != nil {
		return nil, err
	}
	if r.Size > 0 && int64(len(data)) != r.Size {
		// Truncated by an interrupted write; drop it so it is fetched again.
		_ = os.Remove(c.path(r))
		return nil, fs.ErrNotExist
	}
	return data, nil
}

// Write stores a payload atomically.
func (c *CacheDir) Write(r Request, data []byte) error {
	p := c.path(r)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("loader: cache mkdir: %w", err)
	}
	marker := filepath.Join(c.root, datasetDir(r.Dataset), ownerFile)
	if _, err := os.Stat(marker); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(marker, nil, 0o644); err != nil {
			return fmt.Errorf("loader: cache mark: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".part-*")
	if err != nil {
		return fmt.Errorf("loader: cache write: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("loader: cache write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("loader: cache write: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("loader: cache write: %w", err)
	}
	return nil
}

// Delete removes the cached files of one dataset, or of every dataset when
// dataset is empty. Directories the cache did not create are left alone.
func (c *CacheDir) Delete(dataset string) error {
	if dataset != "" {
		return c.deleteDir(datasetDir(dataset))
	}
	entries, err := os.ReadDir(c.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loader: delete cache files: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			if err := c.deleteDir(e.Name()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// deleteDir removes one dataset directory if it carries the owner marker.
func (c *CacheDir) deleteDir(name string) error {
	dir := filepath.Join(c.root, name)
	if _, err := os.Stat(filepath.Join(dir, ownerFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loader: delete cache files: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("loader: delete cache files: %w", err)
	}
	return nil
}

// datasetDir maps a dataset name to a single safe path element.
func datasetDir(dataset string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(dataset)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
