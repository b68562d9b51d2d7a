package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Board/internal/chess/uci"
)

// Remote asks an HTTP engine service for moves: POST /bestmove {fen, depth}.
type Remote struct {
	*worker
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
	queueSize      int
	logger         *zap.Logger
}

type RemoteOption func(*Remote)

func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) { r.defaultTimeout = d }
}

func WithRetry(max int) RemoteOption {
	return func(r *Remote) { r.retryMax = max }
}

func WithQueueSize(n int) RemoteOption {
	return func(r *Remote) { r.queueSize = n }
}

func WithLogger(l *zap.Logger) RemoteOption {
	return func(r *Remote) { r.logger = l }
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 30 * time.Second,
		retryMax:       3,
		queueSize:      4,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.worker = newWorker("remote", r.queueSize, r.search, r.logger)
	return r
}

func (r *Remote) Available() bool { return true }

// Stop is a no-op: an HTTP search cannot be interrupted, its reply is
// dropped by the caller when outdated.
func (r *Remote) Stop() {}

func (r *Remote) Quit() { r.shutdown() }

type bestMoveRequest struct {
	FEN   string `json:"fen"`
	Depth int    `json:"depth"`
}

type bestMoveResponse struct {
	BestMove string `json:"bestmove"`
	Ponder   string `json:"ponder"`
}

func (r *Remote) search(ctx context.Context, req Request) (Reply, error) {
	payload, err := json.Marshal(bestMoveRequest{FEN: req.FEN, Depth: req.Depth})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(httpReq)
		fasthttp.ReleaseResponse(resp)
	}()
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.SetRequestURI(r.baseURL + "/bestmove")
	httpReq.Header.SetContentType("application/json")
	httpReq.SetBody(payload)

	attempts := r.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := r.http.DoDeadline(httpReq, resp, r.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return Reply{}, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return Reply{}, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("engine service error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if attempt == attempts || !shouldRetryStatus(status) {
				return Reply{}, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return Reply{}, lastErr
			}
			continue
		}

		best, ponder, err := parseBestMoveBody(resp.Body())
		if err != nil {
			return Reply{}, err
		}
		return Reply{BestMove: best, Ponder: ponder}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return Reply{}, lastErr
}

// parseBestMoveBody accepts {"bestmove": "...", "ponder": "..."} or the raw
// engine output containing a "bestmove" line.
func parseBestMoveBody(body []byte) (string, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", "", errors.New("empty engine response")
	}
	if trimmed[0] == '{' {
		var out bestMoveResponse
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return "", "", fmt.Errorf("decode response: %w", err)
		}
		best, ponder := uci.ParseBestMove("bestmove " + strings.TrimSpace(out.BestMove))
		if ponder == "" {
			ponder = strings.TrimSpace(out.Ponder)
		}
		return best, ponder, nil
	}
	for _, line := range strings.Split(string(trimmed), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "bestmove") {
			best, ponder := uci.ParseBestMove(line)
			return best, ponder, nil
		}
	}
	return "", "", fmt.Errorf("no bestmove in response: %s", truncate(string(trimmed), 128))
}

func (r *Remote) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(r.defaultTimeout)
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
