package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
)

const (
	ResourcesDir = "resources"
	SavesDir     = "saves"
	GraphicsDir  = "graphics"
	MetadataFile = "metadata.json"
	LockFile     = ".install.lock"
	BaseName     = "base"
)

// GameLayout describes the on-disk shape of one installed game:
//
//	<root>/<slug>/
//	  resources/base.<ext>
//	  saves/
//	  graphics/{grid,hero,logo,icon}.png
//	  metadata.json
type GameLayout struct {
	dir  string
	slug string
}

// NewGameLayout places the game named slug under installRoot.
func NewGameLayout(installRoot, slug string) *GameLayout {
	return &GameLayout{dir: filepath.Join(installRoot, slug), slug: slug}
}

func (l *GameLayout) Dir() string  { return l.dir }
func (l *GameLayout) Slug() string { return l.slug }

// Ensure creates the game directory and its subdirectories.
func (l *GameLayout) Ensure() error {
	for _, sub := range []string{ResourcesDir, SavesDir, GraphicsDir} {
		path := filepath.Join(l.dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}
	return nil
}

// ResourcePath is resources/base.<ext>.
func (l *GameLayout) ResourcePath(ext string) string {
	return filepath.Join(l.dir, ResourcesDir, BaseName+"."+ext)
}

func (l *GameLayout) GraphicsPath(name string) string {
	return filepath.Join(l.dir, GraphicsDir, name)
}

func (l *GameLayout) MetadataPath() string {
	return filepath.Join(l.dir, MetadataFile)
}

func (l *GameLayout) LockPath() string {
	return filepath.Join(l.dir, LockFile)
}

// Lock takes an exclusive, non-blocking lock on the game directory so two
// installs never write into the same destination. The caller must Unlock.
func (l *GameLayout) Lock() (*flock.Flock, error) {
	lock := flock.New(l.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.dir, err)
	}
	if !ok {
		return nil, errpkg.ErrGameDirBusy
	}
	return lock, nil
}

// WriteMetadata replaces metadata.json atomically.
func (l *GameLayout) WriteMetadata(meta domain.GameMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return WriteFileAtomic(l.MetadataPath(), data)
}

// ReadMetadata loads metadata.json back.
func (l *GameLayout) ReadMetadata() (domain.GameMetadata, error) {
	var meta domain.GameMetadata
	data, err := os.ReadFile(l.MetadataPath())
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse metadata: %w", err)
	}
	return meta, nil
}

// FileExists checks whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetFileSize returns the size of the file in bytes.
func GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Rename moves from to to, replacing an existing file.
func Rename(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(from), err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary sibling and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
