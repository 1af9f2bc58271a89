package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
	"github.com/veranemoloko/retro-installer/internal/metrics"
	"github.com/veranemoloko/retro-installer/internal/naming"
	"github.com/veranemoloko/retro-installer/internal/storage"
)

// Options configures a Resolver.
type Options struct {
	ArweaveBaseURL   string
	RomheavenBaseURL string
	UserAgent        string
	Timeout          time.Duration
	MaxFileSize      int64
	Retries          int
	RetryCooldown    time.Duration
}

// Resolver turns source descriptors into byte streams.
type Resolver struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

var errTooLarge = errors.New("file too large")

// statusError carries a non-2xx response so retry logic can classify it.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string { return "bad status: " + e.status }

// NewResolver creates a Resolver with a dedicated HTTP client.
func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.RetryCooldown <= 0 {
		opts.RetryCooldown = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}
}

// URLFor returns the fetchable URL for a descriptor. displayName is used
// for the filename hint some hosts require.
func (r *Resolver) URLFor(desc Descriptor, displayName string) (string, error) {
	switch desc.Scheme {
	case SchemeArweave:
		return joinURL(r.opts.ArweaveBaseURL, desc.Identifier), nil
	case SchemeSwitch:
		name := naming.Slugify(displayName)
		return joinURL(r.opts.RomheavenBaseURL, desc.Identifier+".zip") + "?filename=" + url.QueryEscape(name) + ".zip", nil
	case SchemeHTTP, SchemeHTTPS:
		return desc.URI, nil
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", errpkg.ErrInvalidSource, desc.Scheme)
	}
}

// Download saves the asset to dest. Data is written to dest.part first and
// a leftover part file from an earlier attempt is resumed with a Range
// request. Transient failures are retried with exponential cooldown.
func (r *Resolver) Download(ctx context.Context, raw domain.SourceDescriptor, dest, displayName string) (int64, error) {
	desc, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	target, err := r.URLFor(desc, displayName)
	if err != nil {
		return 0, err
	}

	logger := r.logger.With("scheme", desc.Scheme, "dest", dest)
	partial := dest + ".part"
	cooldown := r.opts.RetryCooldown

	var lastErr error
	for attempt := 0; attempt <= r.opts.Retries; attempt++ {
		if attempt > 0 {
			metrics.DownloadRetries.Inc()
			logger.Warn("Retrying download", "attempt", attempt, "cooldown", cooldown, "error", lastErr)
			select {
			case <-ctx.Done():
				os.Remove(partial)
				return 0, ctx.Err()
			case <-time.After(cooldown):
			}
			cooldown *= 2
		}

		total, err := r.fetch(ctx, target, partial)
		if err == nil {
			if err := storage.Rename(partial, dest); err != nil {
				os.Remove(partial)
				return 0, err
			}
			logger.Info("Download finished", "bytes", total)
			return total, nil
		}

		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}

	os.Remove(partial)
	logger.Error("Download failed", "error", lastErr)
	return 0, fmt.Errorf("%w: %w", errpkg.ErrDownloadFailed, lastErr)
}

func (r *Resolver) fetch(ctx context.Context, target, partial string) (int64, error) {
	var existingSize int64
	if storage.FileExists(partial) {
		if size, err := storage.GetFileSize(partial); err == nil {
			existingSize = size
		}
	}

	resp, err := r.get(ctx, target, existingSize)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if existingSize > 0 && resp.StatusCode != http.StatusPartialContent {
		existingSize = 0
	}

	if r.opts.MaxFileSize > 0 && resp.ContentLength > 0 && existingSize+resp.ContentLength > r.opts.MaxFileSize {
		return 0, fmt.Errorf("%w: %d bytes", errTooLarge, existingSize+resp.ContentLength)
	}

	var file *os.File
	if existingSize > 0 {
		file, err = os.OpenFile(partial, os.O_WRONLY|os.O_APPEND, 0o644)
	} else {
		file, err = os.Create(partial)
	}
	if err != nil {
		return 0, fmt.Errorf("open part file: %w", err)
	}
	defer file.Close()

	var src io.Reader = resp.Body
	if r.opts.MaxFileSize > 0 {
		src = io.LimitReader(resp.Body, r.opts.MaxFileSize-existingSize+1)
	}

	written, err := copyWithContext(ctx, file, src)
	metrics.DownloadBytes.Add(float64(written))
	if err != nil {
		return 0, fmt.Errorf("copy data: %w", err)
	}

	total := existingSize + written
	if r.opts.MaxFileSize > 0 && total > r.opts.MaxFileSize {
		return 0, fmt.Errorf("%w: exceeds %d bytes", errTooLarge, r.opts.MaxFileSize)
	}
	return total, nil
}

func (r *Resolver) get(ctx context.Context, target string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if r.opts.UserAgent != "" {
		req.Header.Set("User-Agent", r.opts.UserAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", errpkg.ErrSourceNotFound, target)
		}
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}
	return resp, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, errpkg.ErrSourceNotFound) || errors.Is(err, errTooLarge) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests || se.code == http.StatusRequestTimeout
	}
	return true
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
			nr, err := src.Read(buf)
			if nr > 0 {
				nw, err := dst.Write(buf[0:nr])
				if nw > 0 {
					total += int64(nw)
				}
				if err != nil {
					return total, err
				}
				if nr != nw {
					return total, io.ErrShortWrite
				}
			}
			if err != nil {
				if err == io.EOF {
					return total, nil
				}
				return total, err
			}
		}
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
