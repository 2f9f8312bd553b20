package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"km24vejviser/internal/service"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// streamOutbound is one frame of the generate stream. Progress frames carry
// Stage; the last frame is either "result" or "error".
type streamOutbound struct {
	Type     string          `json:"type"`
	Stage    string          `json:"stage,omitempty"`
	Message  string          `json:"message,omitempty"`
	Progress int             `json:"progress,omitempty"`
	Code     string          `json:"code,omitempty"`
	Recipe   *service.Result `json:"recipe,omitempty"`
}

// GenerateStream runs the pipeline for ?goal= and streams stage events over
// a websocket, ending with the recipe or an error frame.
func (h *Handler) GenerateStream(w http.ResponseWriter, r *http.Request) {
	goal := strings.TrimSpace(r.URL.Query().Get("goal"))
	if goal == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
		h.log.Warn("generate stream set read deadline failed", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// Closing writeCh flushes the queued frames and ends the stream.
	writeCh := make(chan streamOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out, ok := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// The client only sends control frames; a read error means it left.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	res, err := h.d.Recipes.GenerateRecipe(ctx, goal, func(e service.Event) {
		if e.Stage == service.StageError {
			return
		}
		pushStream(writeCh, streamOutbound{
			Type:     "progress",
			Stage:    e.Stage,
			Message:  e.Message,
			Progress: e.Progress,
		})
	})
	final := streamOutbound{Type: "result", Recipe: res}
	if err != nil {
		h.log.Warn("generate stream failed", "error", err)
		final = streamOutbound{Type: "error", Code: "generation_failed", Message: err.Error()}
	}
	select {
	case writeCh <- final:
		close(writeCh)
	case <-writerDone:
	}
	<-writerDone
}

// pushStream enqueues a progress frame, dropping the oldest queued frame
// when the client is slow.
func pushStream(writeCh chan streamOutbound, out streamOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
