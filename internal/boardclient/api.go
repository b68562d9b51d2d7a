// Package boardclient talks to a board server over HTTP and websockets.
package boardclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/Cheese-Board/pkg/boarddto"
)

type API struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*API)

func WithTimeout(d time.Duration) Option {
	return func(a *API) { a.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(a *API) { a.retryMax = max }
}

func NewAPI(baseURL string, opts ...Option) *API {
	a := &API{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SocketURL returns the websocket address for a game.
func (a *API) SocketURL(gameID string) string {
	base := a.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/games/" + url.PathEscape(gameID)
}

func (a *API) Health(ctx context.Context) (*boarddto.Health, error) {
	var h boarddto.Health
	if _, err := a.do(ctx, fasthttp.MethodGet, "/healthz", &h, true); err != nil {
		return nil, err
	}
	return &h, nil
}

func (a *API) CreateGame(ctx context.Context, req boarddto.NewGameRequest) (*boarddto.View, error) {
	q := url.Values{}
	if req.PlayAs != "" {
		q.Set("playAs", req.PlayAs)
	}
	if req.Level != "" {
		q.Set("stockfishLevel", req.Level)
	}
	if req.Theme != "" {
		q.Set("theme", req.Theme)
	}
	if req.Player != "" {
		q.Set("player", req.Player)
	}
	path := "/api/games"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var v boarddto.View
	if _, err := a.do(ctx, fasthttp.MethodPost, path, &v, false); err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *API) RecentGames(ctx context.Context, limit int) ([]boarddto.Game, error) {
	path := "/api/games/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp boarddto.HistoryResponse
	if _, err := a.do(ctx, fasthttp.MethodGet, path, &resp, true); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

func (a *API) FinishedGame(ctx context.Context, gameID string) (*boarddto.Game, error) {
	var g boarddto.Game
	if _, err := a.do(ctx, fasthttp.MethodGet, "/api/history/"+url.PathEscape(gameID), &g, true); err != nil {
		return nil, err
	}
	return &g, nil
}

func (a *API) BoardPNG(ctx context.Context, gameID string) ([]byte, error) {
	return a.do(ctx, fasthttp.MethodGet, "/api/games/"+url.PathEscape(gameID)+"/board.png", nil, true)
}

// do sends one request and decodes JSON into out when out is non-nil. The raw body is returned.
func (a *API) do(ctx context.Context, method, path string, out any, retry bool) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(method)
	req.SetRequestURI(a.baseURL + path)

	attempts := 1
	if retry && a.retryMax > 0 {
		attempts = a.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := a.http.DoDeadline(req, resp, a.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts || sleepWithContext(ctx, backoffDuration(attempt)) != nil {
				return nil, lastErr
			}
			continue
		}
		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = decodeError(status, resp.Body())
			if attempt == attempts || !shouldRetryStatus(status) || sleepWithContext(ctx, backoffDuration(attempt)) != nil {
				return nil, lastErr
			}
			continue
		}
		body := append([]byte(nil), resp.Body()...)
		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
		}
		return body, nil
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

// decodeError prefers the server's DomainError over a raw status line.
func decodeError(status int, body []byte) error {
	var msg boarddto.ServerMessage
	if err := json.Unmarshal(body, &msg); err == nil && msg.Error != nil {
		return *msg.Error
	}
	text := string(body)
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return fmt.Errorf("board api error: status=%d body=%s", status, text)
}

func (a *API) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(a.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
