package cache

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DownloadCache maps a URL to a local path under
// <dir>/files/<scheme>/<host>/<encoded-path>/<basename>.
type DownloadCache struct {
	dir string
}

// NewDownloadCache roots a download cache at dir.
func NewDownloadCache(dir string) *DownloadCache { return &DownloadCache{dir: dir} }

// PrefixPolicy gates which URLs are cacheable at all via deny/allow prefix
// lists.
type PrefixPolicy struct {
	Allow []string
	Deny  []string
}

// Cacheable reports whether rawURL passes the policy: deny prefixes always
// win; an empty Allow list means "allow everything not denied".
func (p PrefixPolicy) Cacheable(rawURL string) bool {
	for _, d := range p.Deny {
		if strings.HasPrefix(rawURL, d) {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, a := range p.Allow {
		if strings.HasPrefix(rawURL, a) {
			return true
		}
	}
	return false
}

// cachePath computes the deterministic on-disk location for rawURL:
// files/<scheme>/<host>/<encoded-dirname>/<basename>, where the dirname's
// underscores are doubled before its slashes become underscores so the
// encoding can't collide (e.g. "a/b" vs "a_b"). Query strings are folded
// into the encoded dirname, making them part of the key, unless
// disregardQuery is set.
func (c *DownloadCache) cachePath(rawURL string, disregardQuery bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("cache: parsing URL %q: %w", rawURL, err)
	}
	dn, fn := path.Split(u.Path)
	if fn == "" {
		fn = "download"
	}
	dn = strings.Trim(dn, "/")
	if !disregardQuery && u.RawQuery != "" {
		dn += "?" + u.RawQuery
	}
	if dn != "" {
		dn = strings.ReplaceAll(dn, "_", "__")
		dn = strings.ReplaceAll(dn, "/", "_")
	}
	return filepath.Join(c.dir, "files", u.Scheme, u.Hostname(), dn, fn), nil
}

// GetDownload returns the existing cache path for rawURL, shared-locked for
// the caller's use, or ok=false on a miss.
func (c *DownloadCache) GetDownload(rawURL string, disregardQuery bool) (path string, lock *SharedLock, ok bool, err error) {
	path, err = c.cachePath(rawURL, disregardQuery)
	if err != nil {
		return "", nil, false, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return "", nil, false, nil
	}
	lock, err = LockShared(path)
	if err != nil {
		return "", nil, false, err
	}
	return path, lock, true, nil
}

// PutDownload atomically moves localPath into the cache for rawURL and
// returns its new, permanent location.
func (c *DownloadCache) PutDownload(rawURL, localPath string, disregardQuery bool) (string, error) {
	dest, err := c.cachePath(rawURL, disregardQuery)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}
	if err := os.Rename(localPath, dest); err != nil {
		if !isCrossDevice(err) {
			return "", fmt.Errorf("cache: %w", err)
		}
		if err := copyFile(localPath, dest); err != nil {
			return "", err
		}
		os.Remove(localPath)
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer in.Close()
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: %w", err)
	}
	return os.Rename(tmp, dst)
}

func isCrossDevice(err error) bool {
	return strings.Contains(err.Error(), "cross-device") || strings.Contains(err.Error(), "invalid cross-device link")
}
