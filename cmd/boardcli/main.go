package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/park285/Cheese-Board/internal/boardclient"
	"github.com/park285/Cheese-Board/internal/obslog"
	"github.com/park285/Cheese-Board/internal/tui"
	"github.com/park285/Cheese-Board/pkg/boarddto"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "board server base URL")
	playAs := flag.String("play-as", "white", "white or black")
	level := flag.String("level", "", "engine depth 1-20 or level1..level8")
	theme := flag.String("theme", "", "classic, green or blue")
	player := flag.String("player", "", "name used to remember the theme")
	history := flag.Int("history", 0, "print the last N finished games and exit")
	gameID := flag.String("game", "", "print one finished game with its PGN and exit")
	flag.Parse()

	opts := obslog.OptionsFromEnv()
	opts.ToConsole = false // the terminal belongs to the board
	if _, err := obslog.Init(opts); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	api := boardclient.NewAPI(*server, boardclient.WithTimeout(10*time.Second))
	if *history > 0 || *gameID != "" {
		printHistory(api, *history, *gameID)
		return
	}
	if *player == "" {
		*player = petname.Generate(2, "-")
		fmt.Fprintf(os.Stderr, "playing as %s (pass -player %s to keep your theme)\n", *player, *player)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	view, err := api.CreateGame(ctx, boarddto.NewGameRequest{
		PlayAs: *playAs,
		Level:  *level,
		Theme:  *theme,
		Player: *player,
	})
	cancel()
	if err != nil {
		log.Fatalf("create game: %v", err)
	}

	sock := boardclient.NewSocket(api.SocketURL(view.GameID), 5, obslog.Named("socket"))
	ui := tui.New(sock)
	sock.OnView(ui.Update)
	sock.OnError(ui.ShowError)
	ui.Update(view)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	err = sock.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	runErr := ui.Run()

	ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)
	_ = sock.Close(ctx)
	cancel()
	if runErr != nil {
		log.Fatalf("ui: %v", runErr)
	}
}

func printHistory(api *boardclient.API, limit int, gameID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if gameID != "" {
		g, err := api.FinishedGame(ctx, gameID)
		if err != nil {
			log.Fatalf("game: %v", err)
		}
		fmt.Print(tui.FormatGame(*g))
		return
	}
	games, err := api.RecentGames(ctx, limit)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	fmt.Print(tui.FormatHistory(games))
}
