package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/park285/Cheese-Board/internal/boardclient"
	"github.com/park285/Cheese-Board/internal/chess"
	appcfg "github.com/park285/Cheese-Board/internal/config"
	"github.com/park285/Cheese-Board/internal/engine"
	"github.com/park285/Cheese-Board/internal/obslog"
	"github.com/park285/Cheese-Board/pkg/boarddto"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ok   = color.New(color.FgGreen).PrintfFunc()
	warn = color.New(color.FgYellow).PrintfFunc()
	fail = color.New(color.FgRed, color.Bold).PrintfFunc()
)

func main() {
	fen := flag.String("fen", startFEN, "position to evaluate")
	level := flag.String("level", "8", "engine depth 1-20 or level1..level8")
	server := flag.String("server", os.Getenv("BOARD_SERVER_URL"), "optional board server to check")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.Init(obslog.OptionsFromEnv())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	lvl, err := chess.ParseLevel(*level)
	if err != nil {
		log.Fatalf("level: %v", err)
	}

	factory, err := engine.NewFactory(engine.FactoryConfig{
		URL:           cfg.EngineURL,
		StockfishPath: cfg.StockfishPath,
		PoolSize:      1,
		MaxInFlight:   1,
	}, logger.Named("engine"))
	if err != nil {
		log.Fatalf("engine init: %v", err)
	}
	defer factory.Close()

	failed := !checkEngine(factory, lvl, *fen)
	if *server != "" && !checkServer(*server) {
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

func checkEngine(factory *engine.Factory, lvl chess.Level, fen string) bool {
	adapter := factory.New(lvl)
	defer adapter.Quit()
	if !adapter.Available() {
		warn("engine: no backend configured (set ENGINE_URL or STOCKFISH_PATH)\n")
		return true
	}

	replies := make(chan engine.Reply, 1)
	adapter.OnResult(func(r engine.Reply) { replies <- r })
	if err := adapter.Evaluate(engine.Request{FEN: fen, Depth: lvl.Depth, Generation: 1}); err != nil {
		fail("engine: evaluate failed: %v\n", err)
		return false
	}
	select {
	case r := <-replies:
		ok("engine (%s): bestmove=%s ponder=%s depth=%d in %s\n", factory.Kind(), r.BestMove, r.Ponder, lvl.Depth, r.Duration.Round(time.Millisecond))
		for i, c := range r.Candidates {
			ok("  #%d %v\n", i+1, c)
		}
		return r.BestMove != ""
	case <-time.After(30 * time.Second):
		fail("engine: no reply within 30s\n")
		return false
	}
}

func checkServer(base string) bool {
	api := boardclient.NewAPI(base, boardclient.WithTimeout(8*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := api.Health(ctx)
	if err != nil {
		fail("/healthz error: %v\n", err)
		return false
	}
	ok("/healthz ok: engine=%s sessions=%d\n", h.Engine, h.Sessions)

	v, err := api.CreateGame(ctx, boarddto.NewGameRequest{})
	if err != nil {
		fail("create game error: %v\n", err)
		return false
	}
	ok("game created: %s\n", v.GameID)

	views := make(chan *boarddto.View, 8)
	sock := boardclient.NewSocket(api.SocketURL(v.GameID), 0, nil)
	sock.OnView(func(v *boarddto.View) { views <- v })
	sock.OnStateChange(func(s boardclient.State) { log.Printf("WS state: %s", s) })
	if err := sock.Connect(ctx); err != nil {
		fail("WS connect error: %v\n", err)
		return false
	}
	defer func() { _ = sock.Close(context.Background()) }()

	select {
	case got := <-views:
		ok("WS view ok: revision=%d fen=%s\n", got.Revision, got.FEN)
		return true
	case <-ctx.Done():
		fail("WS: no view received\n")
		return false
	}
}
