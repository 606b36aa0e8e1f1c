// Package download resolves File/Directory input values whose path is a
// remote URI into a local path, consulting and populating pkg/cache's
// download cache along the way.
package download

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/lemonberrylabs/wdlcore/pkg/cache"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// SchemeFetcher fetches rawURL's content to destPath — the one method a
// downloader actually needs from the caller's perspective. A real s3/gs
// fetcher would shell out to the corresponding CLI the way a task's
// command does.
type SchemeFetcher interface {
	Fetch(ctx context.Context, rawURL, destPath string) error
}

// Downloader resolves remote File/Directory inputs, per scheme, through the
// download cache.
type Downloader struct {
	Cache          *cache.DownloadCache
	Policy         cache.PrefixPolicy
	Fetchers       map[string]SchemeFetcher
	DisregardQuery bool
	WorkDir        string // scratch directory for in-flight downloads
}

// NewDownloader builds a Downloader with the http/https scheme wired to a
// concrete net/http fetcher; s3/gs are left for the caller to register a
// SchemeFetcher for.
func NewDownloader(cacheDir, workDir string) *Downloader {
	return &Downloader{
		Cache:   cache.NewDownloadCache(cacheDir),
		WorkDir: workDir,
		Fetchers: map[string]SchemeFetcher{
			"http":  HTTPFetcher{},
			"https": HTTPFetcher{},
		},
	}
}

// IsRemote reports whether path looks like a URI this package should
// resolve, rather than a plain local filesystem path.
func IsRemote(path string) bool {
	u, err := url.Parse(path)
	if err != nil || u.Scheme == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "s3", "gs":
		return true
	default:
		return false
	}
}

// Resolve fetches rawURL to a local path, consulting the download cache
// first. The returned unlock must be called once
// the caller is done reading the resolved path.
func (d *Downloader) Resolve(ctx context.Context, pos diag.SourcePos, rawURL string) (localPath string, unlock func(), err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, diag.Wrap(diag.KindDownloadFailed, pos, err)
	}

	cacheable := d.Policy.Cacheable(rawURL)
	if cacheable {
		if path, lock, ok, err := d.Cache.GetDownload(rawURL, d.DisregardQuery); err != nil {
			return "", nil, diag.Wrap(diag.KindDownloadFailed, pos, err)
		} else if ok {
			return path, func() { lock.Unlock() }, nil
		}
	}

	fetcher, ok := d.Fetchers[u.Scheme]
	if !ok {
		return "", nil, diag.New(diag.KindDownloadFailed, pos, "no downloader registered for scheme %q", u.Scheme)
	}

	if err := os.MkdirAll(d.WorkDir, 0o755); err != nil {
		return "", nil, diag.Wrap(diag.KindDownloadFailed, pos, err)
	}
	base := filepath.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		base = "download"
	}
	tmp, err := os.CreateTemp(d.WorkDir, "dl-*-"+base)
	if err != nil {
		return "", nil, diag.Wrap(diag.KindDownloadFailed, pos, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := fetcher.Fetch(ctx, rawURL, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", nil, diag.Wrap(diag.KindDownloadFailed, pos, err)
	}

	if !cacheable {
		return tmpPath, func() {}, nil
	}
	final, err := d.Cache.PutDownload(rawURL, tmpPath, d.DisregardQuery)
	if err != nil {
		return "", nil, diag.Wrap(diag.KindDownloadFailed, pos, err)
	}
	lock, err := cache.LockShared(final)
	if err != nil {
		return "", nil, diag.Wrap(diag.KindDownloadFailed, pos, err)
	}
	return final, func() { lock.Unlock() }, nil
}

// ResolveInputs walks inputs' values, resolving every remote File/Directory
// leaf to a local path and returning the rewritten environment plus a single
// unlock func releasing every download lock taken.
func ResolveInputs(ctx context.Context, d *Downloader, inputs *wdlenv.Bindings[wdlvalue.Value]) (*wdlenv.Bindings[wdlvalue.Value], func(), error) {
	var unlocks []func()
	releaseAll := func() {
		for _, u := range unlocks {
			u()
		}
	}

	var out *wdlenv.Bindings[wdlvalue.Value]
	var walkErr error
	inputs.Each(func(name string, b wdlenv.Binding[wdlvalue.Value]) bool {
		v, err := resolveValue(ctx, d, b.Value, &unlocks)
		if err != nil {
			walkErr = err
			return false
		}
		out = wdlenv.Bind(out, name, v, b.Info)
		return true
	})
	if walkErr != nil {
		releaseAll()
		return nil, nil, walkErr
	}
	return out, releaseAll, nil
}

func resolveValue(ctx context.Context, d *Downloader, v wdlvalue.Value, unlocks *[]func()) (wdlvalue.Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch v.Type().Kind {
	case wdltype.KindFile, wdltype.KindDirectory:
		if !IsRemote(v.AsString()) {
			return v, nil
		}
		local, unlock, err := d.Resolve(ctx, diag.SourcePos{}, v.AsString())
		if err != nil {
			return wdlvalue.Value{}, err
		}
		*unlocks = append(*unlocks, unlock)
		if v.Type().Kind == wdltype.KindFile {
			return wdlvalue.NewFile(local), nil
		}
		return wdlvalue.NewDirectory(local), nil
	case wdltype.KindArray:
		items := v.AsList()
		out := make([]wdlvalue.Value, len(items))
		for i, it := range items {
			r, err := resolveValue(ctx, d, it, unlocks)
			if err != nil {
				return wdlvalue.Value{}, err
			}
			out[i] = r
		}
		return wdlvalue.NewArray(*v.Type().Item, out), nil
	case wdltype.KindPair:
		l, r := v.AsPair()
		nl, err := resolveValue(ctx, d, l, unlocks)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		nr, err := resolveValue(ctx, d, r, unlocks)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		return wdlvalue.NewPair(nl, nr), nil
	case wdltype.KindMap:
		om := wdlvalue.NewOrderedMap()
		src := v.AsMap()
		for _, k := range src.Keys() {
			mv, _ := src.Get(k)
			r, err := resolveValue(ctx, d, mv, unlocks)
			if err != nil {
				return wdlvalue.Value{}, err
			}
			om.Set(k, r)
		}
		return wdlvalue.NewMap(*v.Type().Key, *v.Type().Value, om), nil
	case wdltype.KindStruct, wdltype.KindObject:
		om := wdlvalue.NewOrderedMap()
		src := v.AsStruct()
		for _, k := range src.Keys() {
			mv, _ := src.Get(k)
			r, err := resolveValue(ctx, d, mv, unlocks)
			if err != nil {
				return wdlvalue.Value{}, err
			}
			om.Set(k, r)
		}
		return wdlvalue.NewStruct(v.Type(), om), nil
	default:
		return v, nil
	}
}
