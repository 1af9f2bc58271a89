package domain

import (
	"strings"
	"time"

	"github.com/veranemoloko/retro-installer/internal/naming"
)

// SourceDescriptor is an opaque reference to where a game's primary asset
// lives, e.g. "arv://<tx>" or "https://host/file.zip". Only the source
// resolver interprets it.
type SourceDescriptor string

// CatalogHint is a pre-resolved catalog entry supplied with an install request.
type CatalogHint struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Publisher string `json:"publisher,omitempty"`
	Year      int    `json:"year,omitempty"`
}

// Task tracks one requested installation end-to-end.
type Task struct {
	ID          string           `json:"id"`
	GameName    string           `json:"game_name"`
	ConsoleCode string           `json:"console_code"`
	Status      TaskStatus       `json:"status"`
	Progress    float64          `json:"progress"`
	Error       string           `json:"error,omitempty"`
	Source      SourceDescriptor `json:"source"`
	CatalogHint *CatalogHint     `json:"catalog_hint,omitempty"`
	GameDir     string           `json:"game_dir,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewTask builds a queued task. The caller assigns the ID.
func NewTask(id, gameName, consoleCode string, source SourceDescriptor, hint *CatalogHint) *Task {
	now := time.Now()
	return &Task{
		ID:          id,
		GameName:    strings.TrimSpace(gameName),
		ConsoleCode: strings.ToUpper(strings.TrimSpace(consoleCode)),
		Status:      TaskStatusQueued,
		Progress:    ProgressFor(TaskStatusQueued),
		Source:      source,
		CatalogHint: hint,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy safe to hand to readers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.CatalogHint != nil {
		hint := *t.CatalogHint
		c.CatalogHint = &hint
	}
	return &c
}

// Slug is the directory name the game installs into.
func (t *Task) Slug() string {
	return naming.Slugify(t.GameName)
}

// DedupKey identifies the install destination; two active tasks must never
// share one.
func (t *Task) DedupKey() string {
	return strings.ToUpper(t.ConsoleCode) + ":" + t.Slug()
}

// SearchName is the name used against artwork and catalog providers.
func (t *Task) SearchName() string {
	if t.CatalogHint != nil && strings.TrimSpace(t.CatalogHint.Name) != "" {
		return t.CatalogHint.Name
	}
	return t.GameName
}
