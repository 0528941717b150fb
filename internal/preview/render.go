// Package preview draws a match snapshot into a still image, for the
// /api/preview.png endpoint and for debugging.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"pong-arena/internal/game"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Default image size, 16:9 like the browser client
const (
	DefaultWidth  = 640
	DefaultHeight = 360
)

var (
	colorBackground = color.RGBA{12, 12, 28, 255}
	colorNet        = color.RGBA{60, 60, 80, 255}
	colorPaddle     = color.RGBA{250, 250, 255, 255}
	colorEmptySeat  = color.RGBA{90, 90, 110, 255}
	colorBall       = color.RGBA{255, 210, 70, 255}
	colorText       = color.White
)

// Renderer maps the normalized playfield onto a fixed-size image
type Renderer struct {
	width, height int
	rules         game.Rules
}

// NewRenderer creates a renderer using the default match geometry.
// Non-positive sizes fall back to the defaults.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &Renderer{width: width, height: height, rules: game.DefaultRules()}
}

// WithRules returns a copy drawing paddles and ball with the given geometry
func (r *Renderer) WithRules(rules game.Rules) *Renderer {
	cp := *r
	cp.rules = rules
	return &cp
}

// Size returns the image dimensions
func (r *Renderer) Size() (int, int) {
	return r.width, r.height
}

// Render draws snap. Each call uses its own context, so a Renderer is safe
// for concurrent use.
func (r *Renderer) Render(snap game.Snapshot) image.Image {
	w, h := float64(r.width), float64(r.height)
	dc := gg.NewContext(r.width, r.height)

	dc.SetColor(colorBackground)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	// Center net
	dc.SetColor(colorNet)
	dc.SetLineWidth(2)
	dc.SetDash(8, 8)
	dc.DrawLine(w/2, 0, w/2, h)
	dc.Stroke()
	dc.SetDash()

	r.drawPaddle(dc, snap.Player1, r.rules.LeftPaddleX)
	r.drawPaddle(dc, snap.Player2, r.rules.RightPaddleX)

	dc.SetColor(colorBall)
	dc.DrawCircle(snap.Ball.X*w, snap.Ball.Y*h, r.rules.BallRadius*h)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(fmt.Sprintf("%d", snap.Player1.Score), w/4, 24, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%d", snap.Player2.Score), 3*w/4, 24, 0.5, 0.5)
	if snap.Status != game.PhasePlaying.String() {
		dc.DrawStringAnchored(snap.Status, w/2, h-20, 0.5, 0.5)
	}

	return dc.Image()
}

func (r *Renderer) drawPaddle(dc *gg.Context, p game.PlayerSnapshot, planeX float64) {
	w, h := float64(r.width), float64(r.height)
	paddleW := 0.01 * w

	if p.ID == "" {
		dc.SetColor(colorEmptySeat)
	} else {
		dc.SetColor(colorPaddle)
	}
	x := planeX*w - paddleW/2
	dc.DrawRectangle(x, p.Position*h, paddleW, r.rules.PaddleHeight*h)
	dc.Fill()
}

// EncodePNG writes img as PNG
func (r *Renderer) EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode preview png: %w", err)
	}
	return nil
}
