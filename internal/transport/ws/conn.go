package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cwrk-planet/chatsync/pkg/errs"

	"github.com/gorilla/websocket"
)

// Conn это то, что клиенту нужно от сокета. *websocket.Conn ему удовлетворяет.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// GorillaDialer открывает сокет через gorilla/websocket.
type GorillaDialer struct {
	D *websocket.Dialer
}

func (g GorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d := g.D
	if d == nil {
		d = websocket.DefaultDialer
	}

	conn, resp, err := d.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", errs.ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial: %v", errs.ErrTransient, err)
	}
	conn.SetReadLimit(1 << 20)

	return conn, nil
}
