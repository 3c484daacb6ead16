package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/internal/store"
	"github.com/cwrk-planet/chatsync/pkg/errs"
	"github.com/cwrk-planet/chatsync/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

// Chat это то, что поверхность умеет делать с текущей сессией.
type Chat interface {
	OpenConversation(ctx context.Context, roomID int64, kind domain.RoomKind) error
	LoadMore(ctx context.Context) error
	SendMessage(ctx context.Context, content string, to store.Target) (domain.Message, error)
	MarkRead(roomID int64)
	StartTyping(roomID int64)
	StopTyping(roomID int64)
	Reconnect(ctx context.Context) error
	Snapshot() store.Snapshot
	Status() domain.ConnStatus
}

type ChatHandlers struct {
	Current func() (Chat, bool)
}

type sendRequest struct {
	Content    string          `json:"content"`
	Kind       domain.RoomKind `json:"kind,omitempty"`
	ReceiverID int64           `json:"receiverId,omitempty"`
}

func (h *ChatHandlers) session(w http.ResponseWriter) (Chat, bool) {
	if h.Current != nil {
		if c, ok := h.Current(); ok {
			return c, true
		}
	}
	httputil.Error(w, http.StatusServiceUnavailable, "no active session", nil)
	return nil, false
}

func roomID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roomId"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Error(w, http.StatusBadRequest, "invalid room id", nil)
		return 0, false
	}
	return id, true
}

func fail(w http.ResponseWriter, msg string, err error) {
	httputil.Error(w, errs.ToHTTP(err), msg, map[string]any{"reason": err.Error()})
}

// GET /healthz
func (h *ChatHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "no_session"
	if h.Current != nil {
		if c, ok := h.Current(); ok {
			status = string(c.Status())
		}
	}
	httputil.OK(w, map[string]string{"status": "ok", "connection": status})
}

// GET /state
func (h *ChatHandlers) State(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w)
	if !ok {
		return
	}
	httputil.OK(w, c.Snapshot())
}

// POST /connect
func (h *ChatHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w)
	if !ok {
		return
	}
	if err := c.Reconnect(r.Context()); err != nil {
		fail(w, "connect failed", err)
		return
	}
	httputil.OK(w, map[string]string{"connection": string(c.Status())})
}

// POST /conversations/{roomId}/open?kind=SHARED|DIRECT
func (h *ChatHandlers) Open(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	kind := domain.RoomKind(strings.ToUpper(r.URL.Query().Get("kind")))
	if kind == "" {
		kind = domain.KindDirect
	}

	if err := c.OpenConversation(r.Context(), id, kind); err != nil {
		fail(w, "open conversation failed", err)
		return
	}
	httputil.OK(w, c.Snapshot().Active)
}

// POST /conversations/{roomId}/more
func (h *ChatHandlers) More(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	if a := c.Snapshot().Active; a == nil || a.RoomID != id {
		httputil.Error(w, http.StatusConflict, "conversation is not active", nil)
		return
	}

	if err := c.LoadMore(r.Context()); err != nil {
		fail(w, "load more failed", err)
		return
	}
	httputil.OK(w, c.Snapshot().Active)
}

// POST /conversations/{roomId}/read
func (h *ChatHandlers) Read(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	c.MarkRead(id)
	httputil.JSON(w, http.StatusNoContent, nil)
}

// POST /conversations/{roomId}/typing?stop=true
func (h *ChatHandlers) Typing(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w)
	if !ok {
		return
	}
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	if stop, _ := strconv.ParseBool(r.URL.Query().Get("stop")); stop {
		c.StopTyping(id)
	} else {
		c.StartTyping(id)
	}
	httputil.JSON(w, http.StatusNoContent, nil)
}

// POST /messages
func (h *ChatHandlers) Send(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w)
	if !ok {
		return
	}
	var in sendRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid JSON", nil)
		return
	}

	m, err := c.SendMessage(r.Context(), in.Content, store.Target{Kind: in.Kind, ReceiverID: in.ReceiverID})
	if err != nil {
		fail(w, "send failed", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, map[string]any{"data": m})
}
