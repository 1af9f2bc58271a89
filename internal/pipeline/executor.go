package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veranemoloko/retro-installer/internal/artwork"
	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
	"github.com/veranemoloko/retro-installer/internal/metrics"
	"github.com/veranemoloko/retro-installer/internal/registry"
	"github.com/veranemoloko/retro-installer/internal/storage"
)

// SourceResolver fetches a game's primary asset to a local file.
type SourceResolver interface {
	Download(ctx context.Context, src domain.SourceDescriptor, dest, displayName string) (int64, error)
}

// ConsoleRegistry answers where and how a console's games are installed.
type ConsoleRegistry interface {
	InstallRootFor(code string) (string, error)
	ExtensionFor(code string) string
	UnpackRuleFor(code string) (registry.UnpackRule, bool)
}

// MetadataProvider looks a game up in an online catalog.
type MetadataProvider interface {
	Enabled() bool
	Enrich(ctx context.Context, task *domain.Task) (*domain.CatalogHint, error)
}

// ArtworkProvider finds and stores cover images.
type ArtworkProvider interface {
	Enabled() bool
	Search(ctx context.Context, title string) ([]artwork.Game, error)
	Assets(ctx context.Context, gameID int64, category artwork.Category) ([]artwork.Asset, error)
	Fetch(ctx context.Context, imageURL, dest string) error
}

// Unpacker pulls the playable file out of a container.
type Unpacker interface {
	IsArchive(path string) (bool, error)
	ExtractFirst(archivePath, suffix, dest string) error
}

// TaskUpdater records task progress.
type TaskUpdater interface {
	Transition(ctx context.Context, id string, status domain.TaskStatus) (*domain.Task, error)
	Fail(ctx context.Context, id string, reason string) (*domain.Task, error)
	SetGameDir(ctx context.Context, id string, dir string) error
}

// Notifier is told whenever a task changes.
type Notifier interface {
	Notify()
}

// Deps are the collaborators of an Executor. Metadata and Artwork may be nil.
type Deps struct {
	Store    TaskUpdater
	Notifier Notifier
	Registry ConsoleRegistry
	Source   SourceResolver
	Unpacker Unpacker
	Metadata MetadataProvider
	Artwork  ArtworkProvider
}

// Executor drives a single task through download, extraction, metadata and
// artwork until it is complete or failed.
type Executor struct {
	deps   Deps
	logger *slog.Logger
}

// errStopped means the task became terminal underneath us, usually because
// the user cancelled it.
var errStopped = errors.New("task stopped")

// NewExecutor creates an Executor.
func NewExecutor(deps Deps, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{deps: deps, logger: logger}
}

// Run processes task to completion. Every failure ends in the task being
// marked failed; nothing is returned to the caller.
func (e *Executor) Run(ctx context.Context, task *domain.Task) {
	logger := e.logger.With("task_id", task.ID, "game", task.GameName, "console", task.ConsoleCode)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Executor panicked", "error", fmt.Sprint(r))
			e.fail(task.ID, fmt.Sprint(r), logger)
		}
	}()

	err := e.install(ctx, task, logger)
	switch {
	case err == nil:
		metrics.TasksCompleted.Inc()
		logger.Info("Install complete", "duration", time.Since(started))
	case errors.Is(err, errStopped):
		logger.Info("Install stopped", "duration", time.Since(started))
	default:
		reason := failureReason(err)
		logger.Error("Install failed", "error", err, "reason", reason)
		e.fail(task.ID, reason, logger)
	}
}

func (e *Executor) install(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	root, err := e.deps.Registry.InstallRootFor(task.ConsoleCode)
	if err != nil {
		return err
	}

	layout := storage.NewGameLayout(root, task.Slug())
	if err := layout.Ensure(); err != nil {
		return err
	}

	lock, err := layout.Lock()
	if err != nil {
		return err
	}
	// The lock file is never removed: flock holds the inode, not the path.
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release install lock", "error", err)
		}
	}()

	if err := e.deps.Store.SetGameDir(ctx, task.ID, layout.Dir()); err != nil {
		return e.stopped(err)
	}

	if err := e.download(ctx, task, layout, logger); err != nil {
		return err
	}

	meta, err := e.metadata(ctx, task, layout, logger)
	if err != nil {
		return err
	}

	if err := e.advance(ctx, task.ID, domain.TaskStatusArtwork); err != nil {
		return err
	}
	e.artwork(ctx, meta.TitleFor(domain.DefaultRegion), layout, logger)

	return e.advance(ctx, task.ID, domain.TaskStatusComplete)
}

func (e *Executor) download(ctx context.Context, task *domain.Task, layout *storage.GameLayout, logger *slog.Logger) error {
	if err := e.advance(ctx, task.ID, domain.TaskStatusDownloading); err != nil {
		return err
	}
	stageStart := time.Now()

	ext := e.deps.Registry.ExtensionFor(task.ConsoleCode)
	final := layout.ResourcePath(ext)
	rule, unpacks := e.deps.Registry.UnpackRuleFor(task.ConsoleCode)

	dest := final
	if unpacks {
		dest = layout.ResourcePath(rule.Container)
	}

	size, err := e.deps.Source.Download(ctx, task.Source, dest, task.GameName)
	if err != nil {
		return fmt.Errorf("%w: %w", errpkg.ErrDownloadFailed, err)
	}
	metrics.StageDuration.WithLabelValues(string(domain.TaskStatusDownloading)).Observe(time.Since(stageStart).Seconds())
	logger.Info("Download complete", "bytes", size, "dest", dest)

	if !unpacks || dest == final {
		return nil
	}

	isArchive, err := e.deps.Unpacker.IsArchive(dest)
	if err != nil {
		return fmt.Errorf("%w: %w", errpkg.ErrExtractionFailed, err)
	}
	if !isArchive {
		logger.Debug("Download is not a container, keeping as is")
		return storage.Rename(dest, final)
	}

	if err := e.advance(ctx, task.ID, domain.TaskStatusExtracting); err != nil {
		return err
	}
	stageStart = time.Now()

	if err := e.deps.Unpacker.ExtractFirst(dest, rule.Entry, final); err != nil {
		return fmt.Errorf("%w: %w", errpkg.ErrExtractionFailed, err)
	}
	metrics.StageDuration.WithLabelValues(string(domain.TaskStatusExtracting)).Observe(time.Since(stageStart).Seconds())
	return nil
}

func (e *Executor) metadata(ctx context.Context, task *domain.Task, layout *storage.GameLayout, logger *slog.Logger) (domain.GameMetadata, error) {
	if err := e.advance(ctx, task.ID, domain.TaskStatusMetadata); err != nil {
		return domain.GameMetadata{}, err
	}
	stageStart := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(domain.TaskStatusMetadata)).Observe(time.Since(stageStart).Seconds())
	}()

	hint := task.CatalogHint
	if hint == nil {
		if existing, ok := catalogued(layout, task.ConsoleCode); ok {
			logger.Debug("Reusing catalogued metadata", "id", existing.ID)
			return existing, nil
		}
	}

	if hint == nil && e.deps.Metadata != nil && e.deps.Metadata.Enabled() {
		found, err := e.deps.Metadata.Enrich(ctx, task)
		switch {
		case err != nil:
			logger.Warn("Catalog lookup failed, using placeholder metadata", "error", err)
		case found != nil:
			hint = found
			task.CatalogHint = found
		}
	}

	meta := domain.NewGameMetadata(task.ConsoleCode, layout.Slug(), task.GameName, hint)
	if err := layout.WriteMetadata(meta); err != nil {
		return domain.GameMetadata{}, err
	}
	return meta, nil
}

// catalogued returns the metadata.json of an earlier install of the same game
// when it already carries a catalog entry.
func catalogued(layout *storage.GameLayout, consoleCode string) (domain.GameMetadata, bool) {
	meta, err := layout.ReadMetadata()
	if err != nil || meta.ID == 0 || !strings.EqualFold(meta.Console, consoleCode) {
		return domain.GameMetadata{}, false
	}
	return meta, true
}

// artwork never fails the install; every problem is logged and dropped.
func (e *Executor) artwork(ctx context.Context, title string, layout *storage.GameLayout, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Artwork step panicked", "error", fmt.Sprint(r))
		}
	}()

	if e.deps.Artwork == nil || !e.deps.Artwork.Enabled() {
		return
	}
	stageStart := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(domain.TaskStatusArtwork)).Observe(time.Since(stageStart).Seconds())
	}()

	fetched, err := FetchArtwork(ctx, e.deps.Artwork, title, layout)
	if err != nil {
		logger.Warn("Artwork unavailable", "error", err)
		return
	}
	logger.Info("Artwork saved", "assets", fetched)
}

// advance moves the task forward. A task that is already terminal stops
// the executor without touching its recorded state.
func (e *Executor) advance(ctx context.Context, id string, status domain.TaskStatus) error {
	if _, err := e.deps.Store.Transition(ctx, id, status); err != nil {
		return e.stopped(err)
	}
	e.notify()
	return nil
}

func (e *Executor) stopped(err error) error {
	if errors.Is(err, errpkg.ErrTaskTerminal) || errors.Is(err, errpkg.ErrTaskNotFound) {
		return errStopped
	}
	return err
}

func (e *Executor) fail(id, reason string, logger *slog.Logger) {
	// The executor's own context may already be cancelled; the failure must
	// still be recorded.
	if _, err := e.deps.Store.Fail(context.Background(), id, reason); err != nil {
		if !errors.Is(err, errpkg.ErrTaskTerminal) {
			logger.Error("Failed to record failure", "error", err)
		}
		return
	}
	metrics.TasksFailed.WithLabelValues(metrics.FailureReason(reason)).Inc()
	e.notify()
}

func (e *Executor) notify() {
	if e.deps.Notifier != nil {
		e.deps.Notifier.Notify()
	}
}

// failureReason turns an error into the message shown to the user.
func failureReason(err error) string {
	for _, known := range []error{
		errpkg.ErrConsoleNotFound,
		errpkg.ErrGameDirBusy,
		errpkg.ErrDownloadFailed,
		errpkg.ErrExtractionFailed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	return msg
}
