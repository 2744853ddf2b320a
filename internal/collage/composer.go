// Package collage turns an ordered list of image locators into one collage.
//
// The Composer picks the template whose slot count equals the number of
// locators, lays it out on the canvas, acquires every source concurrently and
// paints them. A Session wraps the Composer in the Idle → TemplateChosen →
// Loading → Composed/Failed state machine used by interactive callers.
package collage

import (
	"context"
	"image"
	"time"

	"github.com/charmbracelet/log"

	"github.com/youruser/collageapp/internal/acquire"
	"github.com/youruser/collageapp/internal/errors"
	imagepkg "github.com/youruser/collageapp/internal/image"
	"github.com/youruser/collageapp/internal/layout"
)

// Request describes one composition. Zero width or height selects the
// composer's default canvas size.
type Request struct {
	Locators []string
	Width    int
	Height   int
}

// Result is a finished collage. The caller owns Image.
type Result struct {
	Image    *image.NRGBA
	Template layout.Template
	Slots    []layout.Rect
	Duration time.Duration
}

// Composer runs the template → acquire → composite flow.
type Composer struct {
	Acquirer   *acquire.Pipeline
	Compositor *imagepkg.Compositor
	Width      int
	Height     int
	// MaxEdge caps either canvas dimension; zero means no cap.
	MaxEdge int
	Logger  *log.Logger
}

// NewComposer returns a composer with the default 2160x2160 canvas.
func NewComposer(acquirer *acquire.Pipeline, compositor *imagepkg.Compositor, logger *log.Logger) *Composer {
	if compositor == nil {
		compositor = imagepkg.NewCompositor()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Composer{
		Acquirer:   acquirer,
		Compositor: compositor,
		Width:      imagepkg.DefaultCanvasSize,
		Height:     imagepkg.DefaultCanvasSize,
		MaxEdge:    imagepkg.DefaultMaxEdge,
		Logger:     logger,
	}
}

// Compose produces the collage for req. It fails with NO_TEMPLATE_FOR_COUNT
// before any source is read when no template has len(req.Locators) slots,
// and with COMPOSITION_ABORTED when any source cannot be decoded.
func (c *Composer) Compose(ctx context.Context, req Request) (*Result, error) {
	tmpl, err := layout.Lookup(len(req.Locators))
	if err != nil {
		return nil, err
	}
	return c.ComposeTemplate(ctx, tmpl, req)
}

// size resolves the canvas for req, filling zero dimensions from the
// composer's defaults.
func (c *Composer) size(req Request) (int, int, error) {
	width, height := req.Width, req.Height
	if width == 0 {
		width = c.Width
	}
	if height == 0 {
		height = c.Height
	}
	if width <= 0 || height <= 0 {
		return 0, 0, errors.New(errors.ErrCodeInvalidInput, "canvas size %dx%d must be positive", width, height)
	}
	if c.MaxEdge > 0 && (width > c.MaxEdge || height > c.MaxEdge) {
		return 0, 0, errors.New(errors.ErrCodeInvalidInput, "canvas size %dx%d exceeds %d pixels per edge", width, height, c.MaxEdge)
	}
	return width, height, nil
}

// Validate checks the canvas size and every locator of req without reading
// any source.
func (c *Composer) Validate(req Request) error {
	if _, _, err := c.size(req); err != nil {
		return err
	}
	return c.Acquirer.Validate(req.Locators)
}

// ComposeTemplate is Compose with an already chosen template.
func (c *Composer) ComposeTemplate(ctx context.Context, tmpl layout.Template, req Request) (*Result, error) {
	start := time.Now()
	width, height, err := c.size(req)
	if err != nil {
		return nil, err
	}

	slots := tmpl.Layout(float64(width), float64(height))
	c.Logger.Debug("laid out template", "count", tmpl.Count, "width", width, "height", height)

	images, err := c.Acquirer.Acquire(ctx, req.Locators, slots)
	if err != nil {
		return nil, err
	}

	canvas, err := c.Compositor.Compose(images, slots, width, height)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Image:    canvas,
		Template: tmpl,
		Slots:    slots,
		Duration: time.Since(start),
	}
	c.Logger.Info("composed collage",
		"count", tmpl.Count,
		"size", canvas.Bounds().Size(),
		"duration", res.Duration.Round(time.Millisecond))
	return res, nil
}
