package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"quiz-status-gateway/internal/app"
	"quiz-status-gateway/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

type WSHandler struct {
	manager    *app.StatusManager
	retryCount int
	upgrader   websocket.Upgrader
	log        hclog.Logger

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	closing  bool
	handlers sync.WaitGroup
}

func NewWSHandler(manager *app.StatusManager, retryCount int, logger hclog.Logger) *WSHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &WSHandler{
		manager:    manager,
		retryCount: retryCount,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:   logger,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type progressPayload struct {
	SessionID         int  `json:"sessionId"`
	TotalQuestions    int  `json:"totalQuestions"`
	AnsweredQuestions int  `json:"answeredQuestions"`
	Exiting           bool `json:"exiting"`
}

type setStatusPayload struct {
	SessionID int    `json:"sessionId"`
	Status    string `json:"status"`
}

type statusResult struct {
	SessionID int                  `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
	OK        bool                 `json:"ok"`
}

type ackPayload struct {
	SessionID int `json:"sessionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and feeds client progress events
// into the status manager. A connection that drops mid-session is treated like
// a closed tab: the last partial snapshot of each session is reported through
// the unload path.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	if !h.register(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		return
	}
	defer h.unregister(conn)

	log := h.log.With("conn_id", uuid.NewString(), "user_id", r.URL.Query().Get("userId"))
	log.Debug("client connected")

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", "error", err)
				// Keep draining so the reader never blocks on a dead socket.
				for range send {
				}
				return
			}
		}
	}()

	notifier := app.NotifierFunc(func(_ context.Context, notice domain.Notice) {
		send <- outboundMessage[any]{Type: "notice", Payload: notice}
	})
	sessions := make(map[int]domain.ProgressSnapshot)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "progress":
			var payload progressPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid progress payload")
				continue
			}
			if v := h.manager.ValidateSessionData(payload.SessionID, payload.TotalQuestions, payload.AnsweredQuestions); !v.IsValid {
				send <- errorMessage(strings.Join(v.Errors, "; "))
				continue
			}
			snapshot := domain.ProgressSnapshot{
				SessionID:         payload.SessionID,
				TotalQuestions:    payload.TotalQuestions,
				AnsweredQuestions: payload.AnsweredQuestions,
				IsExiting:         payload.Exiting,
			}
			status := h.manager.DetermineStatus(snapshot.TotalQuestions, snapshot.AnsweredQuestions, snapshot.IsExiting)
			opts := h.options(notifier, "answer")
			if snapshot.IsExiting {
				opts.Trigger = "exit"
			}
			ok := h.manager.UpdateBasedOnCompletion(r.Context(), snapshot.SessionID, snapshot.TotalQuestions, snapshot.AnsweredQuestions, snapshot.IsExiting, opts)
			if status == domain.StatusCompleted && ok {
				delete(sessions, snapshot.SessionID)
			} else {
				sessions[snapshot.SessionID] = snapshot
			}
			send <- outboundMessage[any]{Type: "statusResult", Payload: statusResult{SessionID: snapshot.SessionID, Status: status, OK: ok}}
		case "setStatus":
			var payload setStatusPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid setStatus payload")
				continue
			}
			if !h.manager.IsValidStatus(payload.Status) {
				send <- errorMessage(fmt.Sprintf("%v: %q", domain.ErrInvalidStatus, payload.Status))
				continue
			}
			status := domain.SessionStatus(payload.Status)
			opts := h.options(notifier, "manual")
			var ok bool
			if status == domain.StatusCompleted {
				ok = h.manager.SetCompleted(r.Context(), payload.SessionID, opts)
				if ok {
					delete(sessions, payload.SessionID)
				}
			} else {
				ok = h.manager.SetInProgress(r.Context(), payload.SessionID, opts)
			}
			send <- outboundMessage[any]{Type: "statusResult", Payload: statusResult{SessionID: payload.SessionID, Status: status, OK: ok}}
		case "unload":
			var payload progressPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid unload payload")
				continue
			}
			h.manager.HandleBeforeUnload(payload.SessionID, payload.TotalQuestions, payload.AnsweredQuestions)
			delete(sessions, payload.SessionID)
			send <- outboundMessage[any]{Type: "ack", Payload: ackPayload{SessionID: payload.SessionID}}
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	close(send)
	<-writerDone

	for _, snapshot := range sessions {
		if snapshot.Partial() {
			log.Debug("connection dropped mid-session", "session_id", snapshot.SessionID)
			h.manager.HandleBeforeUnload(snapshot.SessionID, snapshot.TotalQuestions, snapshot.AnsweredQuestions)
		}
	}
}

// Shutdown closes every open connection and waits until their handlers have
// returned, so partial sessions get reported through the unload path before
// the process exits. New connections are refused afterwards.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	h.log.Info("closing websocket connections", "count", len(conns))
	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for websocket handlers: %w", ctx.Err())
	}
}

func (h *WSHandler) register(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	h.handlers.Add(1)
	return true
}

func (h *WSHandler) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.handlers.Done()
}

func (h *WSHandler) options(notifier app.Notifier, trigger string) app.UpdateOptions {
	opts := app.DefaultUpdateOptions(notifier)
	opts.RetryCount = h.retryCount
	opts.Trigger = trigger
	return opts
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
