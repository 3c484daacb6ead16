package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/chatsync/internal/auth"
	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/internal/metrics"
	"github.com/cwrk-planet/chatsync/internal/protocol"
	"github.com/cwrk-planet/chatsync/internal/timers"
	"github.com/cwrk-planet/chatsync/pkg/errs"
	"github.com/cwrk-planet/chatsync/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	timerReconnect = "transport:reconnect"
	timerKeepalive = "transport:keepalive"
)

var (
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrSuperseded        = errors.New("connect superseded by disconnect")
)

// Handler получает входящие кадры и смены статуса соединения.
type Handler interface {
	HandleFrame(protocol.Frame)
	HandleStatus(status domain.ConnStatus, err error)
}

type Options struct {
	URL     string
	Dialer  Dialer
	Timers  *timers.Group
	Handler Handler
	Logger  *slog.Logger

	ConnectTimeout time.Duration // 10s
	WriteTimeout   time.Duration // 10s
	ReadTimeout    time.Duration // 60s, 0 отключает
	Keepalive      time.Duration // 25s, 0 отключает
	BaseDelay      time.Duration // 1s
	MaxAttempts    int           // 5
}

// Client держит одно логическое соединение сессии: reconnect с backoff,
// очередь исходящих на время разрыва, подписки и комнаты.
type Client struct {
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	status     domain.ConnStatus
	attempts   int
	manualStop bool
	gen        uint64
	conn       Conn
	creds      auth.Credentials
	pending    []protocol.Frame
	joined     map[int64]struct{}
	wanted     map[string]string   // topic -> subscription id, переживает разрывы
	active     map[string]struct{} // топики, подписанные на текущем сокете

	// статусы доставляются строго в порядке смены, даже из разных горутин
	qmu      sync.Mutex
	queue    []statusChange
	draining bool
}

type statusChange struct {
	status domain.ConnStatus
	err    error
}

func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer{}
	}
	if opts.Timers == nil {
		opts.Timers = timers.NewGroup(nil)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}

	return &Client{
		opts:   opts,
		log:    logger.Component(opts.Logger, "transport"),
		status: domain.ConnDisconnected,
		joined: make(map[int64]struct{}),
		wanted: make(map[string]string),
		active: make(map[string]struct{}),
	}
}

// Connect идемпотентен: на живом соединении сразу возвращает nil.
// Явный вызов сбрасывает счётчик попыток и выводит из ERROR.
func (c *Client) Connect(ctx context.Context, creds auth.Credentials) error {
	c.mu.Lock()
	switch c.status {
	case domain.ConnConnected:
		c.mu.Unlock()
		return nil
	case domain.ConnConnecting:
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.opts.Timers.Cancel(timerReconnect)
	c.manualStop = false
	c.attempts = 0
	c.creds = creds
	c.gen++
	gen := c.gen
	c.status = domain.ConnConnecting
	c.emitLocked(domain.ConnConnecting, nil)
	c.mu.Unlock()

	c.flushStatus()

	conn, err := c.handshake(ctx, creds)
	return c.finish(gen, conn, err, false)
}

// Disconnect выставляет флаг "не переподключаться" до закрытия сокета,
// поэтому гонка с обрывом не запустит reconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.manualStop = true
	c.gen++
	c.opts.Timers.Cancel(timerReconnect)
	c.opts.Timers.Cancel(timerKeepalive)

	conn := c.conn
	c.conn = nil
	if conn != nil {
		for topic := range c.active {
			_ = c.writeTo(conn, protocol.Unsubscribe(c.wanted[topic]))
		}
		_ = c.writeTo(conn, protocol.Envelope{Type: protocol.TypeDisconnect})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		_ = conn.Close()
	}
	clear(c.active)
	if c.status != domain.ConnDisconnected {
		c.emitLocked(domain.ConnDisconnected, nil)
	}
	c.status = domain.ConnDisconnected
	c.attempts = 0
	c.mu.Unlock()

	c.flushStatus()
	return nil
}

// Send никогда не возвращает ошибку из-за разрыва: без соединения кадр уходит в очередь.
// Ошибка только для кадра, у которого нет исходящего канала.
func (c *Client) Send(f protocol.Frame) error {
	env, err := protocol.Send(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == domain.ConnConnected && c.conn != nil {
		if err := c.writeTo(c.conn, env); err == nil {
			metrics.FramesOut.WithLabelValues(string(f.Action)).Inc()
			return nil
		}
		c.breakLocked()
	}
	c.pending = append(c.pending, f)
	metrics.PendingOutbound.Set(float64(len(c.pending)))
	return nil
}

func (c *Client) JoinRoom(roomID int64) error {
	c.mu.Lock()
	c.joined[roomID] = struct{}{}
	uid := c.creds.UserID
	c.mu.Unlock()

	return c.Send(protocol.Frame{
		Action:     protocol.ActionJoinRoom,
		ChatRoomID: roomID,
		UserID:     uid,
		Timestamp:  c.opts.Timers.Now(),
	})
}

func (c *Client) LeaveRoom(roomID int64) error {
	c.mu.Lock()
	delete(c.joined, roomID)
	uid := c.creds.UserID
	c.mu.Unlock()

	return c.Send(protocol.Frame{
		Action:     protocol.ActionLeaveRoom,
		ChatRoomID: roomID,
		UserID:     uid,
		Timestamp:  c.opts.Timers.Now(),
	})
}

// Subscribe запоминает топик; без соединения подписка уйдёт при connect.
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.wanted[topic]; ok {
		return
	}
	id := uuid.NewString()
	c.wanted[topic] = id
	if c.status == domain.ConnConnected && c.conn != nil {
		if err := c.writeTo(c.conn, protocol.Subscribe(id, topic)); err != nil {
			c.breakLocked()
			return
		}
		c.active[topic] = struct{}{}
	}
}

func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.wanted[topic]
	if !ok {
		return
	}
	delete(c.wanted, topic)
	_, live := c.active[topic]
	delete(c.active, topic)
	if live && c.conn != nil {
		if err := c.writeTo(c.conn, protocol.Unsubscribe(id)); err != nil {
			c.breakLocked()
		}
	}
}

func (c *Client) Status() domain.ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) Pending() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Frame(nil), c.pending...)
}

func (c *Client) JoinedRooms() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]int64, 0, len(c.joined))
	for id := range c.joined {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Subscriptions возвращает топики, подписанные на живом соединении.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedTopics(c.active)
}

// Topics возвращает все запрошенные топики: их восстановит следующий connect.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedTopics(c.wanted)
}

func sortedTopics[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for topic := range m {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// --- lifecycle ---

// handshake: dial с bearer в заголовке, CONNECT и ожидание CONNECTED не дольше ConnectTimeout.
func (c *Client) handshake(ctx context.Context, creds auth.Credentials) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", creds.Bearer())

	conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL, header)
	if err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	if err := c.writeTo(conn, protocol.Connect(creds.Token)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: write connect: %v", errs.ErrTransient, err)
	}

	_ = conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: no handshake ack within %s: %v", errs.ErrTransient, c.opts.ConnectTimeout, err)
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: handshake: %v", errs.ErrTransient, err)
	}
	switch env.Type {
	case protocol.TypeConnected:
	case protocol.TypeError:
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", errs.ErrUnauthorized, env.Message)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("%w: unexpected handshake frame %s", errs.ErrTransient, env.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	return conn, nil
}

// finish применяет результат handshake. retry=true для автоматических попыток:
// транспортная ошибка планирует следующую, ошибка авторизации нет.
func (c *Client) finish(gen uint64, conn Conn, err error, retry bool) error {
	c.mu.Lock()
	if gen != c.gen || c.manualStop {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		if err != nil {
			return err
		}
		return ErrSuperseded
	}

	if err != nil {
		var st domain.ConnStatus
		if retry && !errors.Is(err, errs.ErrUnauthorized) {
			st, err = c.scheduleRetryLocked(err)
		} else {
			c.status = domain.ConnError
			st = domain.ConnError
		}
		attempts := c.attempts
		c.emitLocked(st, err)
		c.mu.Unlock()
		c.log.Warn("connect failed", "status", st, "attempts", attempts, "err", err)
		c.flushStatus()
		return err
	}

	c.gen++
	gen = c.gen
	c.conn = conn
	c.status = domain.ConnConnected
	c.attempts = 0
	c.restoreLocked(conn)
	if c.opts.Keepalive > 0 {
		c.opts.Timers.Every(timerKeepalive, c.opts.Keepalive, c.keepalive)
	}
	// CONNECTED встаёт в очередь раньше, чем readLoop сможет сообщить об обрыве
	c.emitLocked(domain.ConnConnected, nil)
	c.mu.Unlock()

	go c.readLoop(gen, conn)

	c.log.Info("connected", "url", c.opts.URL)
	c.flushStatus()
	return nil
}

// restoreLocked: подписки, повторный join комнат, затем очередь в порядке FIFO.
func (c *Client) restoreLocked(conn Conn) {
	for _, topic := range sortedTopics(c.wanted) {
		if err := c.writeTo(conn, protocol.Subscribe(c.wanted[topic], topic)); err != nil {
			c.breakLocked()
			return
		}
		c.active[topic] = struct{}{}
	}

	queuedJoin := make(map[int64]bool)
	for _, f := range c.pending {
		if f.Action == protocol.ActionJoinRoom {
			queuedJoin[f.ChatRoomID] = true
		}
	}
	rooms := make([]int64, 0, len(c.joined))
	for id := range c.joined {
		if !queuedJoin[id] {
			rooms = append(rooms, id)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	for _, id := range rooms {
		env, _ := protocol.Send(protocol.Frame{
			Action:     protocol.ActionJoinRoom,
			ChatRoomID: id,
			UserID:     c.creds.UserID,
			Timestamp:  c.opts.Timers.Now(),
		})
		if err := c.writeTo(conn, env); err != nil {
			c.breakLocked()
			return
		}
	}

	for i, f := range c.pending {
		env, err := protocol.Send(f)
		if err != nil {
			continue
		}
		if err := c.writeTo(conn, env); err != nil {
			c.pending = append([]protocol.Frame(nil), c.pending[i:]...)
			metrics.PendingOutbound.Set(float64(len(c.pending)))
			c.breakLocked()
			return
		}
		metrics.FramesOut.WithLabelValues(string(f.Action)).Inc()
	}
	c.pending = nil
	metrics.PendingOutbound.Set(0)
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		if c.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}
		c.dispatch(data)
	}
}

// dispatch: битый кадр логируется и выбрасывается, соединение не трогаем.
func (c *Client) dispatch(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("decode").Inc()
		c.log.Warn("drop malformed envelope", "err", err)
		return
	}

	switch env.Type {
	case protocol.TypeMessage:
		f, err := protocol.DecodeFrame(env)
		if err != nil {
			metrics.FramesDropped.WithLabelValues("decode").Inc()
			c.log.Warn("drop malformed frame", "destination", env.Destination, "err", err)
			return
		}
		metrics.FramesIn.WithLabelValues(string(f.Action)).Inc()
		if c.opts.Handler != nil {
			c.opts.Handler.HandleFrame(f)
		}
	case protocol.TypeError:
		c.log.Warn("server error frame", "message", env.Message)
	default:
		c.log.Debug("ignore envelope", "type", env.Type)
	}
}

func (c *Client) handleDrop(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.manualStop {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.opts.Timers.Cancel(timerKeepalive)
	clear(c.active)
	st, err := c.scheduleRetryLocked(fmt.Errorf("%w: connection lost: %v", errs.ErrTransient, cause))
	c.emitLocked(st, err)
	c.mu.Unlock()

	c.flushStatus()
}

// scheduleRetryLocked: задержка BaseDelay * 2^(attempt-1), после MaxAttempts остаёмся в ERROR.
func (c *Client) scheduleRetryLocked(cause error) (domain.ConnStatus, error) {
	if c.attempts >= c.opts.MaxAttempts {
		c.status = domain.ConnError
		return domain.ConnError, fmt.Errorf("reconnect gave up after %d attempts: %w", c.attempts, cause)
	}
	c.attempts++
	delay := c.opts.BaseDelay << (c.attempts - 1)
	c.status = domain.ConnReconnecting
	c.opts.Timers.After(timerReconnect, delay, c.reconnect)
	metrics.ReconnectAttempts.Inc()
	c.log.Info("reconnect scheduled", "attempt", c.attempts, "delay", delay, "cause", cause)

	return domain.ConnReconnecting, cause
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.manualStop || c.status != domain.ConnReconnecting {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	creds := c.creds
	c.mu.Unlock()

	conn, err := c.handshake(context.Background(), creds)
	_ = c.finish(gen, conn, err, true)
}

func (c *Client) keepalive() {
	env, _ := protocol.Send(protocol.Frame{Action: protocol.ActionPing, Timestamp: c.opts.Timers.Now()})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != domain.ConnConnected || c.conn == nil {
		return
	}
	if err := c.writeTo(c.conn, env); err != nil {
		c.breakLocked()
	}
}

// breakLocked закрывает сокет после ошибки записи; обрыв подхватит readLoop.
func (c *Client) breakLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	clear(c.active)
}

func (c *Client) writeTo(conn Conn, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// emitLocked ставит смену статуса в очередь; вызывается под c.mu, поэтому
// порядок в очереди совпадает с порядком переходов.
func (c *Client) emitLocked(st domain.ConnStatus, err error) {
	c.qmu.Lock()
	c.queue = append(c.queue, statusChange{status: st, err: err})
	c.qmu.Unlock()
}

// flushStatus доставляет очередь обработчику вне c.mu. Если доставкой уже
// занята другая горутина, она же доставит и наши статусы.
func (c *Client) flushStatus() {
	c.qmu.Lock()
	if c.draining {
		c.qmu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		ch := c.queue[0]
		c.queue = c.queue[1:]
		c.qmu.Unlock()
		if c.opts.Handler != nil {
			c.opts.Handler.HandleStatus(ch.status, ch.err)
		}
		c.qmu.Lock()
	}
	c.draining = false
	c.qmu.Unlock()
}
