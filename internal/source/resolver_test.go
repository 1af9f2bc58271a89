package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(base string, retries int) *Resolver {
	return NewResolver(Options{
		ArweaveBaseURL:   base,
		RomheavenBaseURL: base,
		UserAgent:        "test-agent",
		MaxFileSize:      1 << 20,
		Retries:          retries,
		RetryCooldown:    time.Millisecond,
	}, newTestLogger())
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		scheme  string
		id      string
		wantErr bool
	}{
		{"arv://AbC_123-x", SchemeArweave, "AbC_123-x", false},
		{"switch://0100F2C0115B6000", SchemeSwitch, "0100F2C0115B6000", false},
		{"HTTPS://example.com/rom.zip", SchemeHTTPS, "HTTPS://example.com/rom.zip", false},
		{"http://example.com/a", SchemeHTTP, "http://example.com/a", false},
		{"arv://bad/id", "", "", true},
		{"ftp://example.com/rom.zip", "", "", true},
		{"no-scheme", "", "", true},
		{"arv://", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			desc, err := Parse(domain.SourceDescriptor(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, errpkg.ErrInvalidSource) {
					t.Fatalf("expected ErrInvalidSource, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if desc.Scheme != tt.scheme || desc.Identifier != tt.id {
				t.Errorf("got %+v", desc)
			}
		})
	}
}

func TestResolver_URLFor(t *testing.T) {
	r := NewResolver(Options{ArweaveBaseURL: "https://arweave.net/", RomheavenBaseURL: "https://dl.romheaven.com"}, nil)

	got, err := r.URLFor(Descriptor{Scheme: SchemeArweave, Identifier: "tx1"}, "Zelda")
	if err != nil || got != "https://arweave.net/tx1" {
		t.Errorf("arv URL = %q, %v", got, err)
	}

	got, err = r.URLFor(Descriptor{Scheme: SchemeSwitch, Identifier: "0100"}, "Super Mario Odyssey")
	if err != nil || got != "https://dl.romheaven.com/0100.zip?filename=super-mario-odyssey.zip" {
		t.Errorf("switch URL = %q, %v", got, err)
	}

	got, err = r.URLFor(Descriptor{Scheme: SchemeHTTPS, URI: "https://host/x.bin"}, "")
	if err != nil || got != "https://host/x.bin" {
		t.Errorf("https URL = %q, %v", got, err)
	}
}

func TestResolver_Download_FullDownload(t *testing.T) {
	wantContent := "hello world"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tx1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("missing user agent")
		}
		io.WriteString(w, wantContent)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "base.sfc")
	n, err := newTestResolver(server.URL, 0).Download(context.Background(), "arv://tx1", dest, "Game")
	if err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if n != int64(len(wantContent)) {
		t.Errorf("expected %d bytes, got %d", len(wantContent), n)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(data) != wantContent {
		t.Errorf("expected file content %q, got %q", wantContent, string(data))
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("part file left behind")
	}
}

func TestResolver_Download_ResumesPartFile(t *testing.T) {
	full := "hello world"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=6-" {
			t.Errorf("expected Range bytes=6-, got %q", r.Header.Get("Range"))
		}
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, full[6:])
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "base.gb")
	if err := os.WriteFile(dest+".part", []byte(full[:6]), 0o644); err != nil {
		t.Fatalf("failed to seed part file: %v", err)
	}

	n, err := newTestResolver(server.URL, 0).Download(context.Background(), "arv://tx", dest, "Game")
	if err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if n != int64(len(full)) {
		t.Errorf("expected %d bytes, got %d", len(full), n)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != full {
		t.Errorf("expected %q, got %q", full, data)
	}
}

func TestResolver_Download_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "base.nes")
	if _, err := newTestResolver(server.URL, 3).Download(context.Background(), "arv://tx", dest, "Game"); err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestResolver_Download_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "base.nes")
	_, err := newTestResolver(server.URL, 3).Download(context.Background(), "arv://tx", dest, "Game")
	if !errors.Is(err, errpkg.ErrDownloadFailed) || !errors.Is(err, errpkg.ErrSourceNotFound) {
		t.Fatalf("expected download failure wrapping not found, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination should not exist")
	}
}

func TestResolver_Download_EnforcesMaxSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer server.Close()

	r := newTestResolver(server.URL, 2)
	r.opts.MaxFileSize = 16

	dest := filepath.Join(t.TempDir(), "base.gba")
	_, err := r.Download(context.Background(), "arv://tx", dest, "Game")
	if !errors.Is(err, errpkg.ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("part file should be removed after a hard failure")
	}
}

func TestResolver_Download_SwitchRequestTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s?%s", r.URL.Path, r.URL.RawQuery)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "base.zip")
	if _, err := newTestResolver(server.URL, 0).Download(context.Background(), "switch://0100", dest, "Mario Kart 8"); err != nil {
		t.Fatalf("Download error: %v", err)
	}

	data, _ := os.ReadFile(dest)
	if string(data) != "/0100.zip?filename=mario-kart-8.zip" {
		t.Errorf("unexpected request target %q", data)
	}
}

func TestResolver_Download_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "base.nes")
	if _, err := newTestResolver(server.URL, 3).Download(ctx, "arv://tx", dest, "Game"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
