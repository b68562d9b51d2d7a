// Package tui is a terminal board for cmd/boardcli.
package tui

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/gdamore/tcell/v2"

	"github.com/park285/Cheese-Board/internal/render"
	"github.com/park285/Cheese-Board/pkg/boarddto"
)

const (
	numRows = 8
	numCols = 8
)

var files = "abcdefgh"

// squareAt maps a board cell (row 0 at the top, col 0 on the left) to a square name.
func squareAt(row, col int, orientation string) string {
	if row < 0 || row >= numRows || col < 0 || col >= numCols {
		return ""
	}
	rank := numRows - row - 1
	file := col
	if orientation == "black" {
		rank = row
		file = numCols - col - 1
	}
	return fmt.Sprintf("%c%d", files[file], rank+1)
}

// cellOf is the inverse of squareAt.
func cellOf(square, orientation string) (row, col int, ok bool) {
	square = strings.ToLower(strings.TrimSpace(square))
	if len(square) != 2 || square[0] < 'a' || square[0] > 'h' || square[1] < '1' || square[1] > '8' {
		return 0, 0, false
	}
	file := int(square[0] - 'a')
	rank := int(square[1] - '1')
	if orientation == "black" {
		return rank, numCols - file - 1, true
	}
	return numRows - rank - 1, file, true
}

func isDark(square string) bool {
	return (int(square[0]-'a')+int(square[1]-'1'))%2 == 0
}

// squareColor picks the background for one square from the theme and highlight kind.
func squareColor(square string, theme render.Theme, kind string) tcell.Color {
	switch kind {
	case "selected":
		return tcell.NewRGBColor(246, 246, 105)
	case "annotation":
		return tcell.NewRGBColor(235, 97, 80)
	case "capture":
		return tcell.NewRGBColor(214, 140, 140)
	case "destination":
		return tcell.NewRGBColor(170, 210, 150)
	case "last_move":
		return tcell.NewRGBColor(205, 210, 106)
	}
	c := theme.Light
	if isDark(square) {
		c = theme.Dark
	}
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

// pieces reads the placement field of fen into square -> glyph.
func pieces(fen string) (map[string]string, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, err
	}
	b := nchess.NewGame(opt).Position().Board()
	out := make(map[string]string, 32)
	for sq, p := range b.SquareMap() {
		if p == nchess.NoPiece {
			continue
		}
		out[sq.String()] = p.String()
	}
	return out, nil
}

func statusLine(v *boarddto.View) string {
	if v == nil {
		return "connecting..."
	}
	if v.Outcome != "in_progress" && v.Result != "" {
		return v.Result
	}
	var b strings.Builder
	b.WriteString(capitalize(v.Turn) + " to move")
	if v.EngineBusy {
		b.WriteString(" (engine thinking)")
	}
	if !v.EngineOnline {
		b.WriteString(" [no engine]")
	}
	return b.String()
}

// playersLine is the header: engine with its strength badge against the player.
func playersLine(v *boarddto.View) string {
	if v == nil {
		return ""
	}
	name := v.Player
	if name == "" {
		name = "Guest"
	}
	return fmt.Sprintf("Stockfish (%s) vs %s", v.LevelSymbol, name)
}

func chatText(messages []boarddto.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Username, strings.TrimSpace(m.Content))
	}
	return b.String()
}

func historyText(san []string) string {
	var b strings.Builder
	for i := 0; i < len(san); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, san[i])
		if i+1 < len(san) {
			fmt.Fprintf(&b, " %s", san[i+1])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
