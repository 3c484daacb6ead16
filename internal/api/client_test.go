package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/pkg/errs"
	"github.com/cwrk-planet/chatsync/pkg/httputil"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL: srv.URL + "/",
		Token:   "tok",
		Timeout: timeout,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestMessages_QueryAndMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/7/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("size") != "20" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get(httputil.HeaderRequestID) == "" {
			t.Errorf("missing request id")
		}
		_, _ = io.WriteString(w, `{
			"messages":[{"id":11,"senderId":3,"content":"hi","sentAt":"2026-02-01T10:00:00Z"}],
			"currentPage":2,"hasMore":true,"totalMessages":41,
			"rateLimit":{"canSendMessage":false,"remainingSeconds":30}
		}`)
	}, time.Second)

	page, err := c.Messages(context.Background(), 7, 2, 20)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if page.CurrentPage != 2 || !page.HasMore || page.TotalMessages != 41 {
		t.Fatalf("page = %+v", page)
	}
	m := page.Messages[0]
	if m.ID != 11 || m.RoomID != 7 || m.Type != domain.TypeUser || m.Status != domain.StatusSent {
		t.Fatalf("message = %+v", m)
	}
	if page.RateLimit == nil || page.RateLimit.CanSendMessage || page.RateLimit.RemainingSeconds != 30 {
		t.Fatalf("rate limit = %+v", page.RateLimit)
	}
}

func TestConversations_Mapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"roomId":1,"kind":"SHARED","activeUsers":12,"unreadCount":0},
			{"roomId":2,"kind":"DIRECT","counterpart":{"userId":9,"name":"Ann"},
			 "lastMessage":{"id":5,"senderId":9,"content":"yo","sentAt":"2026-02-01T10:00:00Z"},"unreadCount":3}
		]`)
	}, time.Second)

	list, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].Kind != domain.KindShared || list[0].ActiveUsers != 12 || list[0].Counterpart != nil {
		t.Fatalf("shared = %+v", list[0])
	}
	d := list[1]
	if d.Counterpart == nil || d.Counterpart.UserID != 9 || d.UnreadCount != 3 {
		t.Fatalf("direct = %+v", d)
	}
	if d.LastMessage == nil || d.LastMessage.RoomID != 2 {
		t.Fatalf("preview = %+v", d.LastMessage)
	}
}

func TestSendDirect_Body(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/conversations/direct/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var in sendRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		if in.Content != "hello" || in.ReceiverID != 9 {
			t.Errorf("body = %+v", in)
		}
		_, _ = io.WriteString(w, `{"message":{"id":100,"chatRoomId":2,"senderId":1,"content":"hello","sentAt":"2026-02-01T10:00:00Z"}}`)
	}, time.Second)

	m, err := c.SendDirect(context.Background(), 9, "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.ID != 100 || m.RoomID != 2 {
		t.Fatalf("message = %+v", m)
	}

	if _, err := c.SendDirect(context.Background(), 0, "hello"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestErrors_MappedToTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, `{"error":{"message":"wait 30s"}}`, errs.ErrRateLimited},
		{http.StatusUnprocessableEntity, `{"message":"contains contact info"}`, errs.ErrContentPolicy},
		{http.StatusUnauthorized, ``, errs.ErrUnauthorized},
		{http.StatusForbidden, `{"error":{"message":"banned"}}`, errs.ErrForbidden},
		{http.StatusServiceUnavailable, ``, errs.ErrTransient},
		{http.StatusInternalServerError, ``, errs.ErrUpstream},
		{http.StatusBadRequest, ``, errs.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, time.Second)

			_, err := c.SendShared(context.Background(), "hi")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestErrors_MessageFromBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"wait 30s"}}`)
	}, time.Second)

	_, err := c.RateLimit(context.Background())
	if err == nil || err.Error() != "rate limited: wait 30s" {
		t.Fatalf("err = %v", err)
	}
}

func TestTimeout_IsTransient(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	start := time.Now()
	_, err := c.RateLimit(context.Background())
	if !errors.Is(err, errs.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestMalformedBody_IsDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"canSendMessage":"yes"`)
	}, time.Second)

	if _, err := c.RateLimit(context.Background()); !errors.Is(err, errs.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestRequestID_PropagatedFromContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(httputil.HeaderRequestID); got != "req-1" {
			t.Errorf("request id = %q", got)
		}
		_, _ = io.WriteString(w, `{"canSendMessage":true,"isPremium":true}`)
	}, time.Second)

	rl, err := c.RateLimit(httputil.WithRequestID(context.Background(), "req-1"))
	if err != nil {
		t.Fatalf("rate limit: %v", err)
	}
	if !rl.CanSendMessage || !rl.IsPremium {
		t.Fatalf("rate limit = %+v", rl)
	}
}
