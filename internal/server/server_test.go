package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-Board/internal/repository"
	"github.com/park285/Cheese-Board/internal/session"
	"github.com/park285/Cheese-Board/internal/store"
	"github.com/park285/Cheese-Board/pkg/boarddto"
)

type testEnv struct {
	server   *httptest.Server
	sessions *session.Manager
	games    *repository.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	games := repository.NewMemory()
	sessions := session.NewManager(session.Config{
		Store:     store.NewMemory(),
		Games:     games,
		MoveDelay: -1,
	})
	srv := New(Config{Sessions: sessions, Games: games, EngineKind: "unavailable"})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		sessions.CloseAll()
	})
	return &testEnv{server: ts, sessions: sessions, games: games}
}

func (e *testEnv) createGame(t *testing.T, query string) boarddto.View {
	t.Helper()
	resp, err := http.Post(e.server.URL+"/api/games"+query, "application/json", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("create status %d: %s", resp.StatusCode, body)
	}
	var v boarddto.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func (e *testEnv) dial(t *testing.T, gameID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/games/" + gameID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readUntil reads server messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(boarddto.ServerMessage) bool) boarddto.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var msg boarddto.ServerMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg boarddto.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var h boarddto.Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" || h.Engine != "unavailable" {
		t.Fatalf("unexpected health: %+v", h)
	}
}

func TestCreateGame(t *testing.T) {
	env := newTestEnv(t)
	v := env.createGame(t, "?playAs=black&stockfishLevel=level2&theme=blue")
	if v.GameID == "" || v.Orientation != "black" || v.Level != "level2" || v.Theme != "blue" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v.Outcome != "in_progress" || v.EngineOnline {
		t.Fatalf("unexpected state: outcome=%q engine=%v", v.Outcome, v.EngineOnline)
	}
	if v.BoardImageURL != "/api/games/"+v.GameID+"/board.png" {
		t.Fatalf("unexpected image url %q", v.BoardImageURL)
	}
}

func TestCreateGameRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]string{
		"?stockfishLevel=42": boarddto.CodeInvalidLevel,
		"?theme=neon":        boarddto.CodeInvalidTheme,
		"?playAs=red":        boarddto.CodeBadRequest,
	}
	for query, code := range cases {
		resp, err := http.Post(env.server.URL+"/api/games"+query, "application/json", nil)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		var msg boarddto.ServerMessage
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest || msg.Error == nil || msg.Error.Code != code {
			t.Fatalf("%s: status %d error %+v, want %s", query, resp.StatusCode, msg.Error, code)
		}
	}
}

func TestBoardPNG(t *testing.T) {
	env := newTestEnv(t)
	v := env.createGame(t, "")
	resp, err := http.Get(env.server.URL + v.BoardImageURL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	data, _ := io.ReadAll(resp.Body)
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}

func TestUnknownGame(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/games/nope", "/api/games/nope/board.png", "/ws/games/nope", "/api/history/nope"} {
		resp, err := http.Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: status %d", path, resp.StatusCode)
		}
	}
}

func TestWebsocketPlay(t *testing.T) {
	env := newTestEnv(t)
	v := env.createGame(t, "")
	conn := env.dial(t, v.GameID)

	readUntil(t, conn, func(m boarddto.ServerMessage) bool { return m.Type == boarddto.TypeView })

	send(t, conn, boarddto.Click("e2"))
	msg := readUntil(t, conn, func(m boarddto.ServerMessage) bool {
		return m.View != nil && m.View.Phase == "selected"
	})
	if msg.View.Selected != "e2" || msg.View.Options["e4"].Kind != "destination" {
		t.Fatalf("unexpected selection view: %+v", msg.View)
	}

	send(t, conn, boarddto.Click("e4"))
	msg = readUntil(t, conn, func(m boarddto.ServerMessage) bool {
		return m.View != nil && len(m.View.History) == 1
	})
	if msg.View.History[0] != "e4" || msg.View.Turn != "black" {
		t.Fatalf("unexpected move view: %+v", msg.View)
	}

	send(t, conn, boarddto.Click("z9"))
	msg = readUntil(t, conn, func(m boarddto.ServerMessage) bool { return m.Type == boarddto.TypeError })
	if msg.Error.Code != boarddto.CodeInvalidSquare {
		t.Fatalf("unexpected error %+v", msg.Error)
	}

	send(t, conn, boarddto.Simple("dance"))
	msg = readUntil(t, conn, func(m boarddto.ServerMessage) bool { return m.Type == boarddto.TypeError })
	if msg.Error.Code != boarddto.CodeBadRequest {
		t.Fatalf("unexpected error %+v", msg.Error)
	}

	send(t, conn, boarddto.Simple(boarddto.TypeResign))
	msg = readUntil(t, conn, func(m boarddto.ServerMessage) bool {
		return m.View != nil && m.View.Outcome == "resigned"
	})
	if !msg.View.DialogOpen || msg.View.Result == "" {
		t.Fatalf("resign must open the dialog: %+v", msg.View)
	}

	resp, err := http.Get(env.server.URL + "/api/games/recent?limit=5")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	defer resp.Body.Close()
	var hist boarddto.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Games) != 1 || hist.Games[0].GameID != v.GameID || hist.Games[0].MovesSAN[0] != "e4" {
		t.Fatalf("unexpected history: %+v", hist)
	}

	detail, err := http.Get(env.server.URL + "/api/history/" + v.GameID)
	if err != nil {
		t.Fatalf("history detail: %v", err)
	}
	defer detail.Body.Close()
	var g boarddto.Game
	if err := json.NewDecoder(detail.Body).Decode(&g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.Result != "resigned" || !strings.Contains(g.PGN, "1. e4") {
		t.Fatalf("unexpected game detail: %+v", g)
	}
}

func TestWebsocketSetTheme(t *testing.T) {
	env := newTestEnv(t)
	v := env.createGame(t, "")
	conn := env.dial(t, v.GameID)

	send(t, conn, boarddto.SetTheme("neon"))
	msg := readUntil(t, conn, func(m boarddto.ServerMessage) bool { return m.Type == boarddto.TypeError })
	if msg.Error.Code != boarddto.CodeInvalidTheme {
		t.Fatalf("unexpected error %+v", msg.Error)
	}
	send(t, conn, boarddto.SetTheme("green"))
	readUntil(t, conn, func(m boarddto.ServerMessage) bool { return m.View != nil && m.View.Theme == "green" })
}

func TestWebsocketChat(t *testing.T) {
	env := newTestEnv(t)
	v := env.createGame(t, "?player=carol&stockfishLevel=2")
	if v.Player != "carol" || v.LevelSymbol != "E" || v.Round != 1 {
		t.Fatalf("unexpected badge: %+v", v)
	}
	conn := env.dial(t, v.GameID)

	send(t, conn, boarddto.Chat("   "))
	msg := readUntil(t, conn, func(m boarddto.ServerMessage) bool { return m.Type == boarddto.TypeError })
	if msg.Error.Code != boarddto.CodeBadRequest {
		t.Fatalf("blank chat should be rejected: %+v", msg.Error)
	}

	send(t, conn, boarddto.Chat("gg"))
	msg = readUntil(t, conn, func(m boarddto.ServerMessage) bool { return m.View != nil && len(m.View.Messages) == 1 })
	if got := msg.View.Messages[0]; got.Username != "carol" || got.Content != "gg" {
		t.Fatalf("unexpected chat line: %+v", got)
	}
}

func TestRecentRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/api/games/recent?limit=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
