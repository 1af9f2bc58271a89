package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/retro-installer/internal/archive"
	"github.com/veranemoloko/retro-installer/internal/artwork"
	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
	"github.com/veranemoloko/retro-installer/internal/registry"
	"github.com/veranemoloko/retro-installer/internal/repository"
	"github.com/veranemoloko/retro-installer/internal/storage"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource writes content to the destination, or fails with err.
type fakeSource struct {
	content []byte
	err     error
	onStart func()
	calls   atomic.Int32
	dests   []string
	mu      sync.Mutex
}

func (s *fakeSource) Download(ctx context.Context, src domain.SourceDescriptor, dest, displayName string) (int64, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.dests = append(s.dests, dest)
	s.mu.Unlock()
	if s.onStart != nil {
		s.onStart()
	}
	if s.err != nil {
		return 0, s.err
	}
	if err := os.WriteFile(dest, s.content, 0o644); err != nil {
		return 0, err
	}
	return int64(len(s.content)), nil
}

type fakeMetadata struct {
	hint  *domain.CatalogHint
	err   error
	calls atomic.Int32
}

func (m *fakeMetadata) Enabled() bool { return true }
func (m *fakeMetadata) Enrich(ctx context.Context, task *domain.Task) (*domain.CatalogHint, error) {
	m.calls.Add(1)
	return m.hint, m.err
}

type fakeArtwork struct {
	enabled   bool
	searchErr error
	panicOn   artwork.Category
	missing   map[artwork.Category]bool
	searched  atomic.Value
}

func (a *fakeArtwork) Enabled() bool { return a.enabled }

func (a *fakeArtwork) Search(ctx context.Context, title string) ([]artwork.Game, error) {
	a.searched.Store(title)
	if a.searchErr != nil {
		return nil, a.searchErr
	}
	return []artwork.Game{{ID: 7, Name: title}}, nil
}

func (a *fakeArtwork) Assets(ctx context.Context, gameID int64, category artwork.Category) ([]artwork.Asset, error) {
	if category == a.panicOn {
		panic("artwork provider bug")
	}
	if a.missing[category] {
		return nil, nil
	}
	return []artwork.Asset{{ID: 1, URL: "https://cdn/" + string(category)}}, nil
}

func (a *fakeArtwork) Fetch(ctx context.Context, imageURL, dest string) error {
	return os.WriteFile(dest, []byte(imageURL), 0o644)
}

type countingNotifier struct {
	n        atomic.Int32
	onNotify func()
}

func (c *countingNotifier) Notify() {
	c.n.Add(1)
	if c.onNotify != nil {
		c.onNotify()
	}
}

type harness struct {
	store    *repository.TaskStore
	notifier *countingNotifier
	registry *registry.Registry
	source   *fakeSource
	library  string
	exec     *Executor
}

func newHarness(t *testing.T, source *fakeSource, meta MetadataProvider, art ArtworkProvider) *harness {
	t.Helper()
	library := t.TempDir()
	h := &harness{
		store:    repository.NewTaskStore(newTestLogger()),
		notifier: &countingNotifier{},
		registry: registry.New(library, newTestLogger()),
		source:   source,
		library:  library,
	}
	deps := Deps{
		Store:    h.store,
		Notifier: h.notifier,
		Registry: h.registry,
		Source:   source,
		Unpacker: archive.NewUnpacker(newTestLogger()),
		Metadata: meta,
		Artwork:  art,
	}
	h.exec = NewExecutor(deps, newTestLogger())
	return h
}

func (h *harness) enqueue(t *testing.T, name, console string, hint *domain.CatalogHint) *domain.Task {
	t.Helper()
	task := domain.NewTask(name+"-id", name, console, "arv://tx", hint)
	require.NoError(t, h.store.Create(context.Background(), task))
	claimed, err := h.store.NextQueued(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	return claimed
}

func (h *harness) get(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return task
}

func zipBytes(t *testing.T, entries map[string]string, order []string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(entries[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestExecutor_HappyPathWithoutExtraction(t *testing.T) {
	h := newHarness(t, &fakeSource{content: []byte("rom")}, nil, nil)
	task := h.enqueue(t, "Chrono Trigger", "SNES", &domain.CatalogHint{ID: 42, Name: "Chrono Trigger", Publisher: "Square", Year: 1995})

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusComplete, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	assert.Empty(t, got.Error)

	gameDir := filepath.Join(h.library, "console", "Super Nintendo", "games", "chrono-trigger")
	assert.Equal(t, gameDir, got.GameDir)
	assert.FileExists(t, filepath.Join(gameDir, "resources", "base.sfc"))
	assert.DirExists(t, filepath.Join(gameDir, "saves"))
	assert.DirExists(t, filepath.Join(gameDir, "graphics"))

	layout := storage.NewGameLayout(filepath.Dir(gameDir), "chrono-trigger")
	lock, err := layout.Lock()
	require.NoError(t, err, "install lock must be released")
	require.NoError(t, lock.Unlock())
	assert.FileExists(t, layout.LockPath())

	meta, err := layout.ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, int64(42), meta.ID)
	assert.Equal(t, "Square", meta.Publisher["NA"])
	assert.Equal(t, 1995, meta.Year)
	assert.Equal(t, "snes-chrono-trigger", meta.Code)

	// downloading, metadata, artwork, complete
	assert.Equal(t, int32(4), h.notifier.n.Load())
}

func TestExecutor_SwitchZipIsExtracted(t *testing.T) {
	content := zipBytes(t, map[string]string{
		"readme.txt": "hi",
		"Game.XCI":   "first",
		"other.xci":  "second",
	}, []string{"readme.txt", "Game.XCI", "other.xci"})
	h := newHarness(t, &fakeSource{content: content}, nil, nil)
	task := h.enqueue(t, "Zelda BOTW", "SWITCH", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	require.Equal(t, domain.TaskStatusComplete, got.Status, got.Error)

	resources := filepath.Join(got.GameDir, "resources")
	data, err := os.ReadFile(filepath.Join(resources, "base.xci"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.NoFileExists(t, filepath.Join(resources, "base.zip"))
	assert.Equal(t, filepath.Join(resources, "base.zip"), h.source.dests[0])

	meta, err := storage.NewGameLayout(filepath.Dir(got.GameDir), "zelda-botw").ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, "unknown", meta.Publisher["NA"])
	assert.Equal(t, "Zelda BOTW", meta.Title["NA"])
	assert.Equal(t, int64(0), meta.ID)
}

func TestExecutor_SwitchNonArchiveSkipsExtraction(t *testing.T) {
	h := newHarness(t, &fakeSource{content: []byte("raw xci payload")}, nil, nil)
	task := h.enqueue(t, "Mario", "SWITCH", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	require.Equal(t, domain.TaskStatusComplete, got.Status, got.Error)
	assert.FileExists(t, filepath.Join(got.GameDir, "resources", "base.xci"))
	assert.NoFileExists(t, filepath.Join(got.GameDir, "resources", "base.zip"))
}

func TestExecutor_ExtractionFailure(t *testing.T) {
	content := zipBytes(t, map[string]string{"game.nsp": "x"}, []string{"game.nsp"})
	h := newHarness(t, &fakeSource{content: content}, nil, nil)
	task := h.enqueue(t, "Kirby", "SWITCH", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "extraction failed", got.Error)
	assert.Equal(t, 0.4, got.Progress)
}

func TestExecutor_DownloadFailure(t *testing.T) {
	h := newHarness(t, &fakeSource{err: errors.New("connection reset")}, nil, nil)
	task := h.enqueue(t, "Tetris", "GB", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "download failed", got.Error)
	assert.Equal(t, 0.2, got.Progress)
	assert.NoFileExists(t, filepath.Join(got.GameDir, storage.MetadataFile))
}

func TestExecutor_UnknownConsole(t *testing.T) {
	source := &fakeSource{content: []byte("rom")}
	h := newHarness(t, source, nil, nil)
	task := h.enqueue(t, "Thing", "XYZ", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "console not found", got.Error)
	assert.Equal(t, 0.0, got.Progress)
	assert.Zero(t, source.calls.Load())
}

func TestExecutor_MetadataProviderUsedWithoutHint(t *testing.T) {
	meta := &fakeMetadata{hint: &domain.CatalogHint{ID: 9, Name: "Super Metroid", Publisher: "Nintendo", Year: 1994}}
	art := &fakeArtwork{enabled: true}
	h := newHarness(t, &fakeSource{content: []byte("rom")}, meta, art)
	task := h.enqueue(t, "super metroid", "SNES", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	require.Equal(t, domain.TaskStatusComplete, got.Status)

	saved, err := storage.NewGameLayout(filepath.Dir(got.GameDir), "super-metroid").ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, int64(9), saved.ID)
	assert.Equal(t, "Super Metroid", saved.Title["NA"])
	assert.Equal(t, "Super Metroid", art.searched.Load())
}

func TestExecutor_ReinstallReusesCataloguedMetadata(t *testing.T) {
	meta := &fakeMetadata{hint: &domain.CatalogHint{ID: 1, Name: "Wrong Match"}}
	art := &fakeArtwork{enabled: true}
	h := newHarness(t, &fakeSource{content: []byte("rom")}, meta, art)

	root, err := h.registry.InstallRootFor("SNES")
	require.NoError(t, err)
	layout := storage.NewGameLayout(root, "super-metroid")
	require.NoError(t, layout.Ensure())
	previous := domain.NewGameMetadata("SNES", "super-metroid", "super metroid",
		&domain.CatalogHint{ID: 77, Name: "Super Metroid", Publisher: "Nintendo", Year: 1994})
	require.NoError(t, layout.WriteMetadata(previous))

	task := h.enqueue(t, "super metroid", "SNES", nil)
	h.exec.Run(context.Background(), task)

	require.Equal(t, domain.TaskStatusComplete, h.get(t, task.ID).Status)
	assert.Zero(t, meta.calls.Load())

	saved, err := layout.ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, int64(77), saved.ID)
	assert.Equal(t, "Nintendo", saved.Publisher["NA"])
	assert.Equal(t, "Super Metroid", art.searched.Load())
}

func TestExecutor_PlaceholderMetadataIsNotReused(t *testing.T) {
	meta := &fakeMetadata{hint: &domain.CatalogHint{ID: 5, Name: "Metroid", Publisher: "Nintendo"}}
	h := newHarness(t, &fakeSource{content: []byte("rom")}, meta, nil)

	root, err := h.registry.InstallRootFor("NES")
	require.NoError(t, err)
	layout := storage.NewGameLayout(root, "metroid")
	require.NoError(t, layout.Ensure())
	require.NoError(t, layout.WriteMetadata(domain.NewGameMetadata("NES", "metroid", "Metroid", nil)))

	task := h.enqueue(t, "Metroid", "NES", nil)
	h.exec.Run(context.Background(), task)

	require.Equal(t, domain.TaskStatusComplete, h.get(t, task.ID).Status)
	assert.Equal(t, int32(1), meta.calls.Load())
	saved, err := layout.ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, int64(5), saved.ID)
}

func TestExecutor_MetadataProviderErrorFallsBackToPlaceholder(t *testing.T) {
	meta := &fakeMetadata{err: errors.New("igdb down")}
	h := newHarness(t, &fakeSource{content: []byte("rom")}, meta, nil)
	task := h.enqueue(t, "Metroid", "NES", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	require.Equal(t, domain.TaskStatusComplete, got.Status)
	saved, err := storage.NewGameLayout(filepath.Dir(got.GameDir), "metroid").ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, "unknown", saved.Publisher["NA"])
}

func TestExecutor_ArtworkWritesCategories(t *testing.T) {
	art := &fakeArtwork{enabled: true, missing: map[artwork.Category]bool{artwork.CategoryLogos: true}}
	h := newHarness(t, &fakeSource{content: []byte("rom")}, nil, art)
	task := h.enqueue(t, "Sonic", "GENESIS", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	require.Equal(t, domain.TaskStatusComplete, got.Status)
	graphics := filepath.Join(got.GameDir, "graphics")
	assert.FileExists(t, filepath.Join(graphics, "grid.png"))
	assert.FileExists(t, filepath.Join(graphics, "hero.png"))
	assert.FileExists(t, filepath.Join(graphics, "icon.png"))
	assert.NoFileExists(t, filepath.Join(graphics, "logo.png"))
}

func TestExecutor_ArtworkFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name string
		art  *fakeArtwork
	}{
		{"search error", &fakeArtwork{enabled: true, searchErr: errors.New("401")}},
		{"provider panic", &fakeArtwork{enabled: true, panicOn: artwork.CategoryHeroes}},
		{"disabled", &fakeArtwork{enabled: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeSource{content: []byte("rom")}, nil, tt.art)
			task := h.enqueue(t, "Pac-Man", "ARCADE", nil)

			h.exec.Run(context.Background(), task)

			got := h.get(t, task.ID)
			assert.Equal(t, domain.TaskStatusComplete, got.Status)
			assert.Equal(t, 1.0, got.Progress)
		})
	}
}

func TestExecutor_NotifiesEachStageInOrder(t *testing.T) {
	source := &fakeSource{content: zipBytes(t, map[string]string{"game.xci": "xci"}, []string{"game.xci"})}
	h := newHarness(t, source, nil, &fakeArtwork{enabled: true})
	task := h.enqueue(t, "Metroid Dread", "SWITCH", nil)

	type step struct {
		status   domain.TaskStatus
		progress float64
	}
	var steps []step
	h.notifier.onNotify = func() {
		got, err := h.store.Get(context.Background(), task.ID)
		require.NoError(t, err)
		steps = append(steps, step{got.Status, got.Progress})
	}

	h.exec.Run(context.Background(), task)

	want := []domain.TaskStatus{
		domain.TaskStatusDownloading,
		domain.TaskStatusExtracting,
		domain.TaskStatusMetadata,
		domain.TaskStatusArtwork,
		domain.TaskStatusComplete,
	}
	require.Len(t, steps, len(want))
	for i, s := range steps {
		assert.Equal(t, want[i], s.status, "step %d", i)
		assert.Equal(t, domain.ProgressFor(s.status), s.progress, "step %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, s.progress, steps[i-1].progress, "progress went backwards at step %d", i)
		}
	}

	// every observed status is a strictly later stage than the one before
	order := make(map[domain.TaskStatus]int, len(domain.PipelineOrder))
	for i, status := range domain.PipelineOrder {
		order[status] = i
	}
	for i := 1; i < len(steps); i++ {
		assert.Greater(t, order[steps[i].status], order[steps[i-1].status])
	}
}

func TestExecutor_CancelledDuringDownloadStaysCancelled(t *testing.T) {
	source := &fakeSource{content: []byte("rom")}
	h := newHarness(t, source, nil, nil)
	task := h.enqueue(t, "Earthbound", "SNES", nil)

	source.onStart = func() {
		_, err := h.store.Cancel(context.Background(), task.ID)
		require.NoError(t, err)
	}

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "cancelled by user", got.Error)
	assert.Equal(t, 0.2, got.Progress)
	assert.NoFileExists(t, filepath.Join(got.GameDir, storage.MetadataFile))
}

func TestExecutor_CancelledBeforeStartNeverDownloads(t *testing.T) {
	source := &fakeSource{content: []byte("rom")}
	h := newHarness(t, source, nil, nil)
	task := h.enqueue(t, "Earthbound", "SNES", nil)

	_, err := h.store.Cancel(context.Background(), task.ID)
	require.NoError(t, err)

	h.exec.Run(context.Background(), task)

	assert.Zero(t, source.calls.Load())
	assert.Equal(t, "cancelled by user", h.get(t, task.ID).Error)
}

func TestExecutor_BusyGameDirectory(t *testing.T) {
	source := &fakeSource{content: []byte("rom")}
	h := newHarness(t, source, nil, nil)
	task := h.enqueue(t, "Doom", "N64", nil)

	root, err := h.registry.InstallRootFor("N64")
	require.NoError(t, err)
	layout := storage.NewGameLayout(root, "doom")
	require.NoError(t, layout.Ensure())
	lock, err := layout.Lock()
	require.NoError(t, err)
	defer lock.Unlock()

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, errpkg.ErrGameDirBusy.Error(), got.Error)
	assert.Zero(t, source.calls.Load())
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	source := &fakeSource{content: []byte("rom"), onStart: func() { panic("disk on fire") }}
	h := newHarness(t, source, nil, nil)
	task := h.enqueue(t, "Halo", "GC", nil)

	h.exec.Run(context.Background(), task)

	got := h.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "disk on fire", got.Error)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "download failed", failureReason(errors.Join(errpkg.ErrDownloadFailed, errors.New("x"))))
	assert.Equal(t, "console not found", failureReason(errpkg.ErrConsoleNotFound))
	assert.Equal(t, "permission denied", failureReason(errors.New("permission denied")))
}
