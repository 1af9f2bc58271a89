package domain

import (
	"time"
)

// CreateTaskRequest represents the request body for queueing an install.
// Source may be omitted when the console registry lists the game.
type CreateTaskRequest struct {
	GameName    string              `json:"game_name" validate:"required,max=200"`
	ConsoleCode string              `json:"console_code" validate:"required,alphanum,max=16"`
	Source      string              `json:"source" validate:"omitempty,source_uri"`
	CatalogHint *CatalogHintRequest `json:"catalog_hint,omitempty" validate:"omitempty"`
}

// CatalogHintRequest is the wire form of a CatalogHint.
type CatalogHintRequest struct {
	ID        int64  `json:"id" validate:"gte=0"`
	Name      string `json:"name" validate:"required,max=200"`
	Publisher string `json:"publisher" validate:"max=200"`
	Year      int    `json:"year" validate:"omitempty,gte=1970,lte=2100"`
}

// ToHint converts the request form, tolerating nil.
func (r *CatalogHintRequest) ToHint() *CatalogHint {
	if r == nil {
		return nil
	}
	return &CatalogHint{ID: r.ID, Name: r.Name, Publisher: r.Publisher, Year: r.Year}
}

// TaskResponse represents a Task as returned to API clients.
type TaskResponse struct {
	ID          string       `json:"task_id"`
	GameName    string       `json:"game_name"`
	ConsoleCode string       `json:"console_code"`
	Status      TaskStatus   `json:"status"`
	Progress    float64      `json:"progress"`
	Error       string       `json:"error,omitempty"`
	CatalogHint *CatalogHint `json:"catalog_hint,omitempty"`
	GameDir     string       `json:"game_dir,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewTaskResponse maps a Task onto its API representation.
func NewTaskResponse(t *Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		GameName:    t.GameName,
		ConsoleCode: t.ConsoleCode,
		Status:      t.Status,
		Progress:    t.Progress,
		Error:       t.Error,
		CatalogHint: t.CatalogHint,
		GameDir:     t.GameDir,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ConsoleResponse describes a registry console to API clients.
type ConsoleResponse struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Unpacks   bool   `json:"unpacks"`
	Games     int    `json:"games"`
}
