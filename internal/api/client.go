package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/internal/metrics"
	"github.com/cwrk-planet/chatsync/pkg/errs"
	"github.com/cwrk-planet/chatsync/pkg/httputil"
	"github.com/cwrk-planet/chatsync/pkg/logger"
)

const maxBody = 4 << 20

// Client это REST-коллабораторы чата. Каждый вызов ограничен собственным таймаутом.
type Client interface {
	Conversations(ctx context.Context) ([]domain.Conversation, error)
	Messages(ctx context.Context, roomID int64, page, size int) (domain.MessagePage, error)
	SendShared(ctx context.Context, content string) (domain.Message, error)
	SendDirect(ctx context.Context, receiverID int64, content string) (domain.Message, error)
	RateLimit(ctx context.Context) (domain.RateLimit, error)
}

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type client struct {
	base    string
	bearer  string
	timeout time.Duration
	http    *http.Client
	log     *slog.Logger
}

func New(opts Options) (Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api client: empty base url")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("api client: bad base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	c := &client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		log:     logger.Component(opts.Logger, "api"),
	}
	if opts.Token != "" {
		c.bearer = "Bearer " + opts.Token
	}
	return c, nil
}

func (c *client) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	var res []conversationDTO
	if err := c.do(ctx, "conversations", http.MethodGet, "/conversations", nil, &res); err != nil {
		return nil, err
	}

	out := make([]domain.Conversation, 0, len(res))
	for _, cv := range res {
		out = append(out, mapConversation(cv))
	}
	return out, nil
}

func (c *client) Messages(ctx context.Context, roomID int64, page, size int) (domain.MessagePage, error) {
	if page < 0 || size <= 0 {
		return domain.MessagePage{}, fmt.Errorf("%w: page=%d size=%d", errs.ErrInvalidInput, page, size)
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	path := "/conversations/" + strconv.FormatInt(roomID, 10) + "/messages?" + q.Encode()

	var res pageDTO
	if err := c.do(ctx, "messages", http.MethodGet, path, nil, &res); err != nil {
		return domain.MessagePage{}, err
	}
	return mapPage(res, roomID), nil
}

func (c *client) SendShared(ctx context.Context, content string) (domain.Message, error) {
	var res sendResponse
	if err := c.do(ctx, "send_shared", http.MethodPost, "/conversations/shared/messages", sendRequest{Content: content}, &res); err != nil {
		return domain.Message{}, err
	}
	return mapMessage(res.Message, 0), nil
}

func (c *client) SendDirect(ctx context.Context, receiverID int64, content string) (domain.Message, error) {
	if receiverID <= 0 {
		return domain.Message{}, fmt.Errorf("%w: receiver id required", errs.ErrInvalidInput)
	}
	var res sendResponse
	in := sendRequest{Content: content, ReceiverID: receiverID}
	if err := c.do(ctx, "send_direct", http.MethodPost, "/conversations/direct/messages", in, &res); err != nil {
		return domain.Message{}, err
	}
	return mapMessage(res.Message, 0), nil
}

func (c *client) RateLimit(ctx context.Context) (domain.RateLimit, error) {
	var res rateLimitDTO
	if err := c.do(ctx, "rate_limit", http.MethodGet, "/conversations/shared/rate-limit", nil, &res); err != nil {
		return domain.RateLimit{}, err
	}
	return mapRateLimit(res), nil
}

func (c *client) do(ctx context.Context, endpoint, method, path string, in, out any) (err error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RESTDuration.WithLabelValues(endpoint, outcome).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		data, mErr := json.Marshal(in)
		if mErr != nil {
			return fmt.Errorf("%w: encode %s: %v", errs.ErrInvalidInput, endpoint, mErr)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errs.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", c.bearer)
	}
	rid := httputil.StampOutgoing(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s timed out after %s", errs.ErrTransient, endpoint, c.timeout)
		}
		return fmt.Errorf("%w: %s: %v", errs.ErrTransient, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", errs.ErrTransient, endpoint, err)
	}

	attrs := append(logger.AttrsFromCtx(ctx),
		slog.String("endpoint", endpoint),
		slog.String("request_id", rid),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)
	c.log.LogAttrs(ctx, slog.LevelDebug, "rest call", attrs...)

	if sentinel := errs.FromStatus(resp.StatusCode); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, errorMessage(resp.StatusCode, data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrDecode, endpoint, err)
	}
	return nil
}

// errorMessage достаёт текст из {"error":{"message":...}} или {"message":...}.
func errorMessage(status int, data []byte) string {
	var eb httputil.ErrorBody
	if json.Unmarshal(data, &eb) == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	var flat struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &flat) == nil && flat.Message != "" {
		return flat.Message
	}
	return http.StatusText(status)
}
