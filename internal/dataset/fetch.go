// Package dataset prepares training data for the downstream model: it
// downloads and verifies raw archives, splits record collections, collates
// records into batches, and accumulates statistics.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/atomworks/nnprep/internal/logger"
	"github.com/atomworks/nnprep/internal/metrics"
)

// Source describes one downloadable dataset archive.
type Source struct {
	Name     string
	URL      string
	SHA256   string // hex-encoded; empty skips verification
	Filename string
}

// Fetcher downloads dataset archives into a local cache directory.
// Interrupted transfers resume via HTTP Range headers. Logging goes through
// the logger carried by the request context.
type Fetcher struct {
	cacheDir string
	client   *http.Client
	metrics  *metrics.Pipeline // nil disables instrumentation
}

// NewFetcher creates a Fetcher writing into cacheDir.
func NewFetcher(cacheDir string, m *metrics.Pipeline) *Fetcher {
	return &Fetcher{
		cacheDir: cacheDir,
		client: &http.Client{
			Timeout: 30 * time.Minute,
		},
		metrics: m,
	}
}

// Fetch downloads the source archive unless a verified copy already sits in
// the cache. It returns the local path of the archive.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (string, error) {
	log := logger.FromContext(ctx)

	if src.URL == "" {
		return "", fmt.Errorf("dataset %s has no URL", src.Name)
	}
	filename := src.Filename
	if filename == "" {
		filename = filepath.Base(src.URL)
	}

	if err := os.MkdirAll(f.cacheDir, 0o750); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", f.cacheDir, err)
	}
	dest := filepath.Join(f.cacheDir, filename)

	if ok, err := f.verified(log, dest, src.SHA256); err != nil {
		return "", err
	} else if ok {
		log.Info("dataset already cached",
			zap.String("dataset", src.Name),
			zap.String("path", dest),
		)
		return dest, nil
	}

	start := time.Now()
	if err := f.download(ctx, log, src.URL, dest); err != nil {
		return "", fmt.Errorf("download %s: %w", src.Name, err)
	}
	if f.metrics != nil {
		f.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}

	if src.SHA256 != "" {
		sum, err := checksumFile(dest)
		if err != nil {
			return "", err
		}
		if sum != src.SHA256 {
			_ = os.Remove(dest)
			return "", fmt.Errorf("checksum mismatch for %s: got %s, want %s",
				src.Name, sum, src.SHA256)
		}
	}

	log.Info("dataset fetched",
		zap.String("dataset", src.Name),
		zap.String("path", dest),
		zap.Duration("elapsed", time.Since(start)),
	)
	return dest, nil
}

// verified reports whether dest exists and matches the expected checksum.
// Without a checksum, mere existence counts as cached.
func (f *Fetcher) verified(log *zap.Logger, dest, wantSHA string) (bool, error) {
	if _, err := os.Stat(dest); err != nil {
		return false, nil
	}
	if wantSHA == "" {
		return true, nil
	}
	sum, err := checksumFile(dest)
	if err != nil {
		return false, err
	}
	if sum != wantSHA {
		log.Warn("cached archive fails checksum, refetching",
			zap.String("path", dest))
		return false, nil
	}
	return true, nil
}

// download fetches url into dest, resuming a partial .tmp file if present.
// A .tmp the server can no longer satisfy a Range for is discarded and the
// transfer restarts from scratch.
func (f *Fetcher) download(ctx context.Context, log *zap.Logger, url, dest string) error {
	tmpPath := filepath.Clean(dest) + ".tmp"

	var offset int64
	if st, err := os.Stat(tmpPath); err == nil {
		offset = st.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		log.Info("resuming download", zap.Int64("offset", offset))
		if f.metrics != nil {
			f.metrics.DownloadResumes.Inc()
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the Range header; start over.
		offset = 0
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		if offset == 0 {
			return fmt.Errorf("download: HTTP %d", resp.StatusCode)
		}
		// The partial file is stale (at or past the remote size).
		log.Warn("partial file no longer resumable, restarting",
			zap.String("path", tmpPath), zap.Int64("offset", offset))
		if err := os.Remove(tmpPath); err != nil {
			return fmt.Errorf("remove stale %s: %w", tmpPath, err)
		}
		return f.download(ctx, log, url, dest)
	default:
		if offset > 0 {
			// Discard the partial so the next attempt starts clean.
			_ = os.Remove(tmpPath)
		}
		return fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if offset == 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	out, err := os.OpenFile(tmpPath, flags, 0o640)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmpPath, err)
	}

	n, err := io.Copy(out, resp.Body)
	if f.metrics != nil {
		f.metrics.DownloadBytes.Add(float64(n))
	}
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("copy body: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
