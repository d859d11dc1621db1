// Package blobcache is a durable key→bytes and key→directory store rooted in
// a local directory. Single-key writes are atomic (write temp file, rename).
// Read failures are logged and reported as misses.
package blobcache

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/mytimetablemaker/transit-sync/internal/models"
)

const (
	tmpSuffix = ".tmp"
	dirsName  = "dirs"
)

// Cache stores blobs as files under root and directories under root/dirs
type Cache struct {
	root string
}

// New creates the cache root if needed
func New(root string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(root, dirsName), 0755); err != nil {
		return nil, &models.CacheIOError{Key: root, Err: err}
	}
	return &Cache{root: root}, nil
}

// Root returns the cache directory
func (c *Cache) Root() string {
	return c.root
}

// Load returns the bytes stored under key, or nil on miss or read error
func (c *Cache) Load(key string) []byte {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: cache read %s failed: %v", key, &models.CacheIOError{Key: key, Err: err})
		}
		return nil
	}
	return data
}

// Exists reports whether a value is stored under key
func (c *Cache) Exists(key string) bool {
	info, err := os.Stat(c.path(key))
	return err == nil && info.Mode().IsRegular()
}

// ModTime returns when key was last written
func (c *Cache) ModTime(key string) (time.Time, bool) {
	info, err := os.Stat(c.path(key))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Save writes data under key. The value is written to key+".tmp" in the same
// directory, synced, then renamed over the target, so readers observe either
// the old value or the new one.
func (c *Cache) Save(data []byte, key string) error {
	target := c.path(key)
	if err := writeFileAtomic(target, data); err != nil {
		return &models.CacheIOError{Key: key, Err: err}
	}
	return nil
}

// SaveFrom streams r into key with the same atomicity as Save
func (c *Cache) SaveFrom(r io.Reader, key string) error {
	target := c.path(key)
	tmp := target + tmpSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return &models.CacheIOError{Key: key, Err: err}
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return &models.CacheIOError{Key: key, Err: err}
	}
	if err := finishAtomic(f, tmp, target); err != nil {
		return &models.CacheIOError{Key: key, Err: err}
	}
	return nil
}

// Path returns the file path of key (whether or not it exists)
func (c *Cache) Path(key string) string {
	return c.path(key)
}

// Remove deletes the value under key
func (c *Cache) Remove(key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return &models.CacheIOError{Key: key, Err: err}
	}
	return nil
}

// DirectoryExists reports whether a directory is stored under name
func (c *Cache) DirectoryExists(name string) bool {
	info, err := os.Stat(c.dirPath(name))
	return err == nil && info.IsDir()
}

// LoadDirectoryPath returns the stored directory path, or "" when absent
func (c *Cache) LoadDirectoryPath(name string) string {
	if !c.DirectoryExists(name) {
		return ""
	}
	return c.dirPath(name)
}

// SaveDirectory replaces the directory stored under name with a copy of
// sourceDir. The previous directory is deleted, never merged. Not safe for
// two concurrent writers of the same name.
func (c *Cache) SaveDirectory(sourceDir, name string) error {
	target := c.dirPath(name)
	staging := target + tmpSuffix

	if err := os.RemoveAll(staging); err != nil {
		return &models.CacheIOError{Key: name, Err: err}
	}
	if err := copyDir(sourceDir, staging); err != nil {
		os.RemoveAll(staging)
		return &models.CacheIOError{Key: name, Err: fmt.Errorf("copy %s: %w", sourceDir, err)}
	}
	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(staging)
		return &models.CacheIOError{Key: name, Err: err}
	}
	if err := os.Rename(staging, target); err != nil {
		os.RemoveAll(staging)
		return &models.CacheIOError{Key: name, Err: err}
	}
	return nil
}

// RemoveDirectory deletes the directory stored under name
func (c *Cache) RemoveDirectory(name string) error {
	if err := os.RemoveAll(c.dirPath(name)); err != nil {
		return &models.CacheIOError{Key: name, Err: err}
	}
	return nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.root, SanitizeKey(key))
}

func (c *Cache) dirPath(name string) string {
	return filepath.Join(c.root, dirsName, SanitizeKey(name))
}

// SanitizeKey maps a cache key to a single safe file name. Letters, digits,
// '.', '_' and '-' are kept; every other byte is escaped as %XX, so distinct
// keys never share a file. Names that would clash with the cache layout
// (".", "..", the directory root, temp files) get their first or suffix dot
// byte escaped as well.
func SanitizeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); {
		r, size := utf8.DecodeRuneInString(key[i:])
		if r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsNumber(r) || r == '.' || r == '_' || r == '-') {
			b.WriteString(key[i : i+size])
		} else {
			for _, c := range []byte(key[i : i+size]) {
				fmt.Fprintf(&b, "%%%02X", c)
			}
		}
		i += size
	}

	s := b.String()
	switch {
	case s == "":
		return "%"
	case s == "." || s == ".." || s == dirsName:
		return fmt.Sprintf("%%%02X", s[0]) + s[1:]
	case strings.HasSuffix(s, tmpSuffix):
		return strings.TrimSuffix(s, tmpSuffix) + "%2E" + tmpSuffix[1:]
	}
	return s
}

func writeFileAtomic(target string, data []byte) error {
	tmp := target + tmpSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	return finishAtomic(f, tmp, target)
}

func finishAtomic(f *os.File, tmp, target string) error {
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(out, 0755)
		}
		return copyFile(path, out)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
