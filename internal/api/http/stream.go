package http

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/veranemoloko/retro-installer/internal/domain"
)

const streamWriteTimeout = 5 * time.Second

// Snapshot is the message pushed to stream clients.
type Snapshot struct {
	Tasks []domain.TaskResponse `json:"tasks"`
}

// StreamTasks handles GET /tasks/stream. The client gets the full task list
// on connect and again after every change the notifier fans out. Messages
// from the client are ignored.
func (h *TaskHandler) StreamTasks(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("stream: accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx := conn.CloseRead(r.Context())

	changed := make(chan struct{}, 1)
	id := h.manager.AddCallback(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer h.manager.RemoveCallback(id)

	h.logger.Debug("stream: client connected", "subscription", id)

	for {
		if err := h.pushSnapshot(ctx, conn); err != nil {
			h.logger.Debug("stream: client gone", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

func (h *TaskHandler) pushSnapshot(ctx context.Context, conn *websocket.Conn) error {
	tasks, err := h.manager.GetAllTasks(ctx)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, Snapshot{Tasks: toResponses(tasks)})
}
