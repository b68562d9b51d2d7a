package tui

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/park285/Cheese-Board/internal/render"
	"github.com/park285/Cheese-Board/pkg/boarddto"
)

const sendTimeout = 3 * time.Second

// Sender delivers client messages to the server.
type Sender interface {
	Send(ctx context.Context, msg boarddto.ClientMessage) error
}

// App is the terminal board. Keys: enter clicks, m marks, n new game,
// r resigns, t cycles theme, c chats, esc/q quits.
type App struct {
	app     *tview.Application
	pages   *tview.Pages
	table   *tview.Table
	players *tview.TextView
	status  *tview.TextView
	history *tview.TextView
	chat    *tview.TextView
	input   *tview.InputField
	sender  Sender

	mu   sync.Mutex
	view *boarddto.View
}

func New(sender Sender) *App {
	a := &App{
		app:     tview.NewApplication(),
		table:   tview.NewTable(),
		players: tview.NewTextView(),
		status:  tview.NewTextView(),
		history: tview.NewTextView(),
		chat:    tview.NewTextView(),
		input:   tview.NewInputField(),
		sender:  sender,
	}
	a.status.SetText(statusLine(nil))
	a.history.SetBorder(true).SetTitle(" Moves ")
	a.chat.SetBorder(true).SetTitle(" Chat ")
	a.chat.SetChangedFunc(func() { a.chat.ScrollToEnd() })
	a.initInput()

	help := tview.NewTextView().
		SetText("enter: click  m: mark  n: new game  r: resign  t: theme  c: chat  q: quit")

	side := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.players, 1, 0, false).
		AddItem(a.status, 2, 0, false).
		AddItem(a.history, 0, 1, false).
		AddItem(a.chat, 0, 1, false).
		AddItem(a.input, 1, 0, false)
	body := tview.NewFlex().
		AddItem(a.table, 30, 0, true).
		AddItem(side, 0, 1, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(help, 1, 0, false)

	a.pages = tview.NewPages().AddPage("board", root, true, true)
	a.app.SetRoot(a.pages, true)
	a.initTable()
	return a
}

func (a *App) initTable() {
	a.table.SetSelectable(true, true)
	a.table.Select(0, 1)
	a.table.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			a.app.Stop()
		}
	})
	a.table.SetSelectedFunc(func(row, col int) {
		if sq := a.squareFor(row, col); sq != "" {
			a.send(boarddto.Click(sq))
		}
	})
	a.table.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Rune() {
		case 'm':
			row, col := a.table.GetSelection()
			if sq := a.squareFor(row, col); sq != "" {
				a.send(boarddto.RightClick(sq))
			}
		case 'n':
			a.send(boarddto.Simple(boarddto.TypeNewGame))
		case 'r':
			a.send(boarddto.Simple(boarddto.TypeResign))
		case 't':
			a.send(boarddto.SetTheme(a.nextTheme()))
		case 'c':
			a.app.SetFocus(a.input)
		case 'q':
			a.app.Stop()
		default:
			return ev
		}
		return nil
	})
	a.renderTable(nil)
}

// initInput wires the chat line: enter sends, esc goes back to the board.
func (a *App) initInput() {
	a.input.SetLabel("say: ")
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := a.input.GetText()
			if strings.TrimSpace(text) == "" {
				return
			}
			a.send(boarddto.Chat(text))
			a.input.SetText("")
		}
		a.app.SetFocus(a.table)
	})
}

func (a *App) squareFor(row, col int) string {
	a.mu.Lock()
	orientation := "white"
	if a.view != nil {
		orientation = a.view.Orientation
	}
	a.mu.Unlock()
	return squareAt(row, col-1, orientation)
}

func (a *App) nextTheme() string {
	names := render.ThemeNames()
	a.mu.Lock()
	current := ""
	if a.view != nil {
		current = a.view.Theme
	}
	a.mu.Unlock()
	for i, n := range names {
		if n == current {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

func (a *App) send(msg boarddto.ClientMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := a.sender.Send(ctx, msg); err != nil {
			a.app.QueueUpdateDraw(func() { a.status.SetText("send failed: " + err.Error()) })
		}
	}()
}

// Update shows a new server view. Safe to call from any goroutine.
func (a *App) Update(v *boarddto.View) {
	a.mu.Lock()
	if a.view != nil && v.GameID == a.view.GameID && v.Revision < a.view.Revision {
		a.mu.Unlock()
		return
	}
	a.view = v
	a.mu.Unlock()

	a.app.QueueUpdateDraw(func() {
		a.renderTable(v)
		a.players.SetText(playersLine(v))
		a.status.SetText(statusLine(v))
		a.history.SetText(historyText(v.History))
		a.chat.SetText(chatText(v.Messages))
		if row, col, ok := cellOf(v.Selected, v.Orientation); ok {
			a.table.Select(row, col+1)
		}
		a.syncDialogs(v)
	})
}

// ShowError reports a server error in the status line.
func (a *App) ShowError(e *boarddto.DomainError) {
	a.app.QueueUpdateDraw(func() { a.status.SetText("error: " + e.Error()) })
}

func (a *App) Run() error { return a.app.Run() }

func (a *App) Stop() { a.app.Stop() }

func (a *App) renderTable(v *boarddto.View) {
	orientation := "white"
	theme := render.LookupTheme("")
	var glyphs map[string]string
	styles := map[string]boarddto.SquareStyle{}
	if v != nil {
		orientation = v.Orientation
		theme = render.LookupTheme(v.Theme)
		glyphs, _ = pieces(v.FEN)
		styles = v.SquareStyles
	}

	for r := 0; r <= numRows; r++ {
		for c := 0; c <= numCols; c++ {
			switch {
			case c == 0 && r < numRows:
				rank := squareAt(r, 0, orientation)[1:]
				a.table.SetCell(r, c, tview.NewTableCell(rank).SetAlign(tview.AlignCenter).SetSelectable(false))
			case r == numRows && c > 0:
				file := squareAt(0, c-1, orientation)[:1]
				a.table.SetCell(r, c, tview.NewTableCell(" "+file).SetAlign(tview.AlignCenter).SetSelectable(false))
			case r == numRows && c == 0:
				a.table.SetCell(r, c, tview.NewTableCell("").SetSelectable(false))
			default:
				sq := squareAt(r, c-1, orientation)
				glyph := glyphs[sq]
				if glyph == "" {
					glyph = " "
				}
				a.table.SetCell(r, c, tview.NewTableCell(" "+glyph+" ").
					SetAlign(tview.AlignCenter).
					SetTextColor(tcell.ColorBlack).
					SetBackgroundColor(squareColor(sq, theme, styles[sq].Kind)))
			}
		}
	}
}

// syncDialogs shows the promotion picker or the result dialog when the view asks for one.
func (a *App) syncDialogs(v *boarddto.View) {
	a.pages.RemovePage("promotion")
	a.pages.RemovePage("result")

	switch {
	case v.Phase == "awaiting_promotion":
		modal := tview.NewModal().
			SetText("Promote pawn on " + v.PromotionTo).
			AddButtons([]string{"Queen", "Rook", "Bishop", "Knight", "Cancel"}).
			SetDoneFunc(func(_ int, label string) {
				a.pages.RemovePage("promotion")
				if label == "Cancel" || label == "" {
					a.send(boarddto.Simple(boarddto.TypeCancelPromotion))
					return
				}
				a.send(boarddto.Promote(strings.ToLower(label)))
			})
		a.pages.AddPage("promotion", modal, false, true)
	case v.DialogOpen:
		modal := tview.NewModal().
			SetText(v.Result).
			AddButtons([]string{"New game", "Close"}).
			SetDoneFunc(func(_ int, label string) {
				a.pages.RemovePage("result")
				if label == "New game" {
					a.send(boarddto.Simple(boarddto.TypeNewGame))
					return
				}
				a.send(boarddto.Simple(boarddto.TypeCloseDialog))
			})
		a.pages.AddPage("result", modal, false, true)
	default:
		if a.app.GetFocus() != a.input {
			a.app.SetFocus(a.table)
		}
	}
}
