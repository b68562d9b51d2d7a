package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Board/pkg/boarddto"
)

// FormatHistory lists finished games for the terminal, newest first as given.
func FormatHistory(games []boarddto.Game) string {
	if len(games) == 0 {
		return "No finished games yet.\n"
	}
	var sb strings.Builder
	for _, g := range games {
		moves := len(g.MovesSAN)
		if moves == 0 {
			moves = len(g.MovesUCI)
		}
		sb.WriteString(fmt.Sprintf("* %s %s %s as %s, level %s (%d plies)\n",
			resultBadge(g.Result), shortTime(g.EndedAt), g.GameID, g.PlayAs, g.Level, moves))
		if d := gameDuration(time.Duration(g.DurationMS) * time.Millisecond); d != "" {
			sb.WriteString("  duration: " + d + "\n")
		}
	}
	return sb.String()
}

// FormatGame prints one game with its PGN.
func FormatGame(g boarddto.Game) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Game %s\n", g.GameID))
	sb.WriteString(fmt.Sprintf("* result: %s", resultBadge(g.Result)))
	if g.Method != "" {
		sb.WriteString(" by " + strings.ReplaceAll(g.Method, "_", " "))
	}
	sb.WriteByte('\n')
	sb.WriteString(fmt.Sprintf("* level: %s\n", g.Level))
	if !g.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("* started: %s\n", shortTime(g.StartedAt)))
	}
	if d := gameDuration(time.Duration(g.DurationMS) * time.Millisecond); d != "" {
		sb.WriteString(fmt.Sprintf("* duration: %s\n", d))
	}
	if pgn := strings.TrimSpace(g.PGN); pgn != "" {
		sb.WriteString("\n" + pgn + "\n")
	}
	return sb.String()
}

func resultBadge(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "user_won":
		return "[win]"
	case "engine_won":
		return "[loss]"
	case "resigned":
		return "[resigned]"
	case "draw":
		return "[draw]"
	default:
		return "[open]"
	}
}

func shortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func gameDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
