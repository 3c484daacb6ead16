package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/internal/store"
	"github.com/cwrk-planet/chatsync/pkg/errs"
	"github.com/cwrk-planet/chatsync/pkg/httputil"
)

type fakeChat struct {
	opened  []int64
	kinds   []domain.RoomKind
	sent    []store.Target
	sendErr error
	read    []int64
	typing  []string
	active  *domain.MessageWindow
}

func (f *fakeChat) OpenConversation(_ context.Context, id int64, kind domain.RoomKind) error {
	f.opened = append(f.opened, id)
	f.kinds = append(f.kinds, kind)
	f.active = &domain.MessageWindow{RoomID: id, Kind: kind}
	return nil
}

func (f *fakeChat) LoadMore(context.Context) error { return nil }

func (f *fakeChat) SendMessage(_ context.Context, content string, to store.Target) (domain.Message, error) {
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	f.sent = append(f.sent, to)
	return domain.Message{ID: 1, Content: content}, nil
}

func (f *fakeChat) MarkRead(id int64)               { f.read = append(f.read, id) }
func (f *fakeChat) StartTyping(int64)               { f.typing = append(f.typing, "start") }
func (f *fakeChat) StopTyping(int64)                { f.typing = append(f.typing, "stop") }
func (f *fakeChat) Reconnect(context.Context) error { return nil }
func (f *fakeChat) Status() domain.ConnStatus       { return domain.ConnConnected }
func (f *fakeChat) Snapshot() store.Snapshot        { return store.Snapshot{Active: f.active, Conn: domain.ConnConnected} }

func newServer(t *testing.T, c Chat) *httptest.Server {
	t.Helper()
	current := func() (Chat, bool) { return c, c != nil }
	srv := httptest.NewServer(NewRouter(Deps{Current: current, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func TestHealth_WithoutSession(t *testing.T) {
	srv := newServer(t, nil)

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()

	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["connection"] != "no_session" {
		t.Fatalf("body = %+v", body)
	}
	if res.Header.Get(httputil.HeaderRequestID) == "" {
		t.Fatalf("missing request id header")
	}

	res2, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("state status = %d, want 503", res2.StatusCode)
	}
}

func TestOpen_ParsesRoomAndKind(t *testing.T) {
	c := &fakeChat{}
	srv := newServer(t, c)

	res := post(t, srv.URL+"/conversations/12/open?kind=shared", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if len(c.opened) != 1 || c.opened[0] != 12 || c.kinds[0] != domain.KindShared {
		t.Fatalf("opened = %v %v", c.opened, c.kinds)
	}

	if res := post(t, srv.URL+"/conversations/abc/open", ""); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", res.StatusCode)
	}
}

func TestMore_RequiresActiveRoom(t *testing.T) {
	c := &fakeChat{active: &domain.MessageWindow{RoomID: 3}}
	srv := newServer(t, c)

	if res := post(t, srv.URL+"/conversations/4/more", ""); res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.StatusCode)
	}
	if res := post(t, srv.URL+"/conversations/3/more", ""); res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
}

func TestSend_MapsErrors(t *testing.T) {
	c := &fakeChat{}
	srv := newServer(t, c)

	res := post(t, srv.URL+"/messages", `{"content":"hi","kind":"DIRECT","receiverId":9}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if len(c.sent) != 1 || c.sent[0].ReceiverID != 9 || c.sent[0].Kind != domain.KindDirect {
		t.Fatalf("sent = %+v", c.sent)
	}

	c.sendErr = errs.ErrRateLimited
	res = post(t, srv.URL+"/messages", `{"content":"hi"}`)
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("rate limited status = %d", res.StatusCode)
	}
	var body httputil.ErrorBody
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Message != "send failed" {
		t.Fatalf("error body = %+v", body)
	}

	c.sendErr = errs.ErrContentPolicy
	if res := post(t, srv.URL+"/messages", `{"content":"hi"}`); res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("content policy status = %d", res.StatusCode)
	}
	if res := post(t, srv.URL+"/messages", `{`); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", res.StatusCode)
	}
}

func TestReadAndTyping(t *testing.T) {
	c := &fakeChat{}
	srv := newServer(t, c)

	if res := post(t, srv.URL+"/conversations/5/read", ""); res.StatusCode != http.StatusNoContent {
		t.Fatalf("read status = %d", res.StatusCode)
	}
	post(t, srv.URL+"/conversations/5/typing", "")
	post(t, srv.URL+"/conversations/5/typing?stop=true", "")

	if len(c.read) != 1 || c.read[0] != 5 {
		t.Fatalf("read = %v", c.read)
	}
	if len(c.typing) != 2 || c.typing[0] != "start" || c.typing[1] != "stop" {
		t.Fatalf("typing = %v", c.typing)
	}
}

func TestMetrics_Exposed(t *testing.T) {
	srv := newServer(t, &fakeChat{})

	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(data), "go_goroutines") {
		t.Fatalf("metrics body missing default collectors")
	}
}
