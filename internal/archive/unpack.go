package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
	"github.com/veranemoloko/retro-installer/internal/storage"
)

const zipMIME = "application/zip"

// Unpacker pulls the playable file out of downloaded containers.
type Unpacker struct {
	logger *slog.Logger
}

// NewUnpacker creates an Unpacker.
func NewUnpacker(logger *slog.Logger) *Unpacker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Unpacker{logger: logger}
}

// IsArchive reports whether path holds a zip container. Formats built on
// zip (jar, docx and friends) count as well.
func (u *Unpacker) IsArchive(path string) (bool, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false, fmt.Errorf("detect type: %w", err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is(zipMIME) {
			return true, nil
		}
	}
	u.logger.Debug("Not an archive", "path", path, "mime", mtype.String())
	return false, nil
}

// ExtractFirst writes the first regular entry whose name ends in suffix
// (case-insensitive, in archive order) to dest and removes the archive.
func (u *Unpacker) ExtractFirst(archivePath, suffix, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", errpkg.ErrExtractionFailed, archivePath, err)
	}

	entry := findEntry(reader.File, suffix)
	if entry == nil {
		reader.Close()
		return fmt.Errorf("%w: %w: *%s", errpkg.ErrExtractionFailed, errpkg.ErrNoMatchingEntry, suffix)
	}

	if err := writeEntry(entry, dest); err != nil {
		reader.Close()
		return fmt.Errorf("%w: %w", errpkg.ErrExtractionFailed, err)
	}
	reader.Close()

	if err := os.Remove(archivePath); err != nil {
		u.logger.Warn("Failed to remove archive", "path", archivePath, "error", err)
	}

	u.logger.Info("Archive entry extracted", "entry", entry.Name, "dest", dest, "bytes", entry.UncompressedSize64)
	return nil
}

func findEntry(files []*zip.File, suffix string) *zip.File {
	suffix = strings.ToLower(suffix)
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	for _, f := range files {
		if !f.Mode().IsRegular() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f.Name), suffix) {
			return f
		}
	}
	return nil
}

func writeEntry(entry *zip.File, dest string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy entry %s: %w", entry.Name, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := storage.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
