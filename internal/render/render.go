// Package render draws a board view as a PNG image.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/park285/Cheese-Board/internal/board"
)

const (
	squareSize   = 72
	boardSize    = squareSize * 8
	sideMargin   = 28
	topMargin    = 64
	bottomMargin = 28
	panelHeight  = 32
	panelRadius  = 10
	panelPadding = 20
)

var (
	selectedFill       = color.NRGBA{R: 255, G: 255, B: 0, A: 102}
	annotationFill     = color.NRGBA{R: 255, G: 0, B: 0, A: 128}
	humanMoveFill      = color.NRGBA{R: 155, G: 199, B: 0, A: 105}
	engineMoveArrow    = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	destinationDot     = color.NRGBA{R: 0, G: 0, B: 0, A: 48}
	backgroundColor    = color.RGBA{R: 22, G: 21, B: 18, A: 255}
	hudPanelColor      = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTextColor       = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordinateTextFill = color.NRGBA{R: 200, G: 200, B: 200, A: 255}
)

// Renderer turns a board.View into PNG bytes.
type Renderer interface {
	RenderPNG(ctx context.Context, v board.View) ([]byte, error)
}

type pngRenderer struct {
	face font.Face
}

func NewRenderer() Renderer {
	return &pngRenderer{face: basicfont.Face7x13}
}

// geometry maps squares to pixels for one orientation.
type geometry struct {
	origin      image.Point
	orientation nchess.Color
}

func (g geometry) rect(sq nchess.Square) image.Rectangle {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	if g.orientation == nchess.Black {
		col = 7 - col
		row = int(sq.Rank())
	}
	x := g.origin.X + col*squareSize
	y := g.origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func (g geometry) center(sq nchess.Square) image.Point {
	r := g.rect(sq)
	return image.Point{X: r.Min.X + squareSize/2, Y: r.Min.Y + squareSize/2}
}

func (r *pngRenderer) RenderPNG(ctx context.Context, v board.View) ([]byte, error) {
	pos, err := positionFromFEN(v.FEN)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orientation := v.Orientation
	if orientation != nchess.Black {
		orientation = nchess.White
	}
	geo := geometry{origin: image.Point{X: sideMargin, Y: topMargin}, orientation: orientation}
	theme := LookupTheme(v.Theme)

	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomMargin))
	fillRect(img, img.Bounds(), backgroundColor)

	r.drawHUD(img, v, image.Rect(sideMargin, 16, sideMargin+boardSize, 16+panelHeight))
	drawSquares(img, geo, theme)
	drawLastMove(img, geo, pos.Board(), v)
	for sq, st := range v.Options {
		if st.Kind == board.StyleSelected {
			fillRect(img, geo.rect(sq), selectedFill)
		}
	}
	for sq := range v.Annotations {
		fillRect(img, geo.rect(sq), annotationFill)
	}
	if err := drawPieces(img, geo, pos.Board()); err != nil {
		return nil, err
	}
	for sq, st := range v.Options {
		switch st.Kind {
		case board.StyleDestination:
			drawDisc(img, geo.center(sq), squareSize/7, destinationDot)
		case board.StyleCapture:
			drawRing(img, geo.center(sq), squareSize*5/12, squareSize/2, destinationDot)
		}
	}
	r.drawCoordinates(img, geo)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func positionFromFEN(fen string) (*nchess.Position, error) {
	if strings.TrimSpace(fen) == "" {
		return nchess.NewGame().Position(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return nchess.NewGame(opt).Position(), nil
}

func allSquares() []nchess.Square {
	out := make([]nchess.Square, 0, 64)
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			out = append(out, nchess.NewSquare(file, rank))
		}
	}
	return out
}

func drawSquares(img *image.RGBA, geo geometry, theme Theme) {
	for _, sq := range allSquares() {
		clr := theme.Light
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			clr = theme.Dark
		}
		fillRect(img, geo.rect(sq), clr)
	}
}

// drawLastMove fills the squares of a human move and draws an arrow for an
// engine move, so the reply stands out.
func drawLastMove(img *image.RGBA, geo geometry, b *nchess.Board, v board.View) {
	if len(v.LastMove) != 2 {
		for sq := range v.LastMove {
			fillRect(img, geo.rect(sq), humanMoveFill)
		}
		return
	}
	var from, to nchess.Square = nchess.NoSquare, nchess.NoSquare
	for sq := range v.LastMove {
		if p := b.Piece(sq); p != nchess.NoPiece {
			to = sq
		} else {
			from = sq
		}
	}
	if from == nchess.NoSquare || to == nchess.NoSquare {
		for sq := range v.LastMove {
			fillRect(img, geo.rect(sq), humanMoveFill)
		}
		return
	}
	if b.Piece(to).Color() == v.Orientation {
		fillRect(img, geo.rect(from), humanMoveFill)
		fillRect(img, geo.rect(to), humanMoveFill)
		return
	}
	drawArrow(img, geo.rect(from), geo.rect(to), squareSize, engineMoveArrow)
}

func drawPieces(img *image.RGBA, geo geometry, b *nchess.Board) error {
	for sq, piece := range b.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		pieceImg, err := renderPieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		rect := geo.rect(sq)
		drawOver(img, rect, pieceImg)
	}
	return nil
}

func (r *pngRenderer) drawCoordinates(img *image.RGBA, geo geometry) {
	drawer := &font.Drawer{Dst: img, Face: r.face, Src: image.NewUniform(coordinateTextFill)}
	ascent := r.face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		fileSq := nchess.NewSquare(nchess.File(i), nchess.Rank1)
		fr := geo.rect(fileSq)
		drawCenteredText(drawer, fileSq.File().String(), fr.Min.X+squareSize/2, geo.origin.Y+boardSize+ascent+6)

		rankSq := nchess.NewSquare(nchess.FileA, nchess.Rank(i))
		rr := geo.rect(rankSq)
		drawCenteredText(drawer, rankSq.Rank().String(), geo.origin.X-sideMargin/2, rr.Min.Y+squareSize/2+ascent/2)
	}
}

func (r *pngRenderer) drawHUD(img *image.RGBA, v board.View, area image.Rectangle) {
	text := hudText(v)
	drawer := &font.Drawer{Dst: img, Face: r.face}
	width := drawer.MeasureString(text).Round() + panelPadding*2
	if width > area.Dx() {
		width = area.Dx()
	}
	left := area.Min.X + (area.Dx()-width)/2
	panel := image.Rect(left, area.Min.Y, left+width, area.Max.Y)
	drawRoundedPanel(img, panel, panelRadius, hudPanelColor)
	text = truncateWithEllipsis(r.face, text, panel.Dx()-panelPadding*2)
	drawCenteredString(drawer, panel, text, hudTextColor)
}

func hudText(v board.View) string {
	if v.Outcome != board.OutcomeInProgress && v.Result != "" {
		return v.Result
	}
	side := "White"
	if v.Turn == nchess.Black {
		side = "Black"
	}
	move := len(v.History)/2 + 1
	if v.EngineThinking {
		return fmt.Sprintf("Move %d - %s to move (engine thinking)", move, side)
	}
	return fmt.Sprintf("Move %d - %s to move", move, side)
}
