package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// hashFileOrDir returns a stable content digest for path: a plain SHA-256
// over a regular file's bytes, or over the xxhash-prehashed, sorted list of
// a directory's file contents for a Directory value.
func hashFileOrDir(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}
	if !info.IsDir() {
		return hashFile(path)
	}
	var names []string
	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		names = append(names, p)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("cache: walking %s: %w", path, err)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "dir:%x\n", fastListDigest(names))
	for _, n := range names {
		fh, err := hashFile(n)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s %s\n", fh, n)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("cache: hashing %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
