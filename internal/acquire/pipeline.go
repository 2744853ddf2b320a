// Package acquire resolves every slot's source image concurrently.
//
// One load is started per slot and the pipeline joins on all of them before
// deciding the outcome. Results are stored by slot index, so completion
// order never matters. Acquisition is all-or-nothing: unless every locator
// yields an image the call fails with an *errors.AbortedError listing every
// slot failure in slot order. A failing slot does not cancel its siblings.
package acquire

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/youruser/collageapp/internal/errors"
	imagepkg "github.com/youruser/collageapp/internal/image"
	"github.com/youruser/collageapp/internal/layout"
)

// Pipeline fans slot loads out over a Loader.
type Pipeline struct {
	Loader imagepkg.Loader
	Logger *log.Logger
	// Concurrency bounds simultaneous loads; zero runs every slot at once.
	Concurrency int
}

// New returns a pipeline over loader. A nil logger logs to log.Default().
func New(loader imagepkg.Loader, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{Loader: loader, Logger: logger}
}

// Validate rejects locators the loader would refuse, before any is read.
// Loaders that do not implement imagepkg.Validator accept everything here.
func (p *Pipeline) Validate(locators []string) error {
	v, ok := p.Loader.(imagepkg.Validator)
	if !ok {
		return nil
	}
	for i, loc := range locators {
		if err := v.Validate(loc); err != nil {
			return errors.New(errors.ErrCodeInvalidInput, "image %d: %s", i, errors.UserMessage(err))
		}
	}
	return nil
}

// Acquire loads locators[i] for slots[i], for every index covered by both.
// Locators without a slot are not loaded but still count as requested, so
// passing more locators than slots fails the acquisition.
//
// A locator the loader rejects up front fails the whole call with
// INVALID_INPUT. On success the returned slice has one image per slot. If ctx is cancelled
// the context error is returned instead of an aggregate.
func (p *Pipeline) Acquire(ctx context.Context, locators []string, slots []layout.Rect) ([]image.Image, error) {
	if err := p.Validate(locators); err != nil {
		return nil, err
	}
	n := min(len(locators), len(slots))
	images := make([]image.Image, n)
	failures := make([]*errors.SlotError, n)
	start := time.Now()

	var g errgroup.Group
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for i := range n {
		g.Go(func() error {
			img, err := p.load(ctx, i, locators[i], slots[i])
			if err != nil {
				failures[i] = &errors.SlotError{Index: i, Locator: locators[i], Err: err}
				return nil
			}
			images[i] = img
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	aborted := &errors.AbortedError{Requested: len(locators)}
	for i, f := range failures {
		if f != nil {
			aborted.Failures = append(aborted.Failures, f)
			continue
		}
		if images[i] != nil {
			aborted.Decoded++
		}
	}
	for i := n; i < len(locators); i++ {
		aborted.Failures = append(aborted.Failures, &errors.SlotError{
			Index:   i,
			Locator: locators[i],
			Err:     errors.New(errors.ErrCodeInvalidInput, "no slot for image %d in a %d-slot layout", i, len(slots)),
		})
	}

	if aborted.Decoded != len(locators) {
		p.Logger.Error("acquisition aborted",
			"requested", aborted.Requested,
			"decoded", aborted.Decoded,
			"failures", len(aborted.Failures),
			"duration", time.Since(start).Round(time.Millisecond))
		return nil, aborted
	}

	p.Logger.Info("acquired sources", "slots", n, "duration", time.Since(start).Round(time.Millisecond))
	return images, nil
}

// load resolves one slot, turning a loader panic into an error.
func (p *Pipeline) load(ctx context.Context, i int, locator string, slot layout.Rect) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while loading: %v", r)
		}
		if err != nil {
			p.Logger.Warn("slot failed", "slot", i, "locator", locator, "err", err)
		}
	}()

	start := time.Now()
	w := int(math.Ceil(slot.Width()))
	h := int(math.Ceil(slot.Height()))
	img, err = p.Loader.Load(ctx, locator, w, h)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("loader returned no image")
	}
	p.Logger.Debug("slot loaded", "slot", i, "locator", locator,
		"size", fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()),
		"duration", time.Since(start).Round(time.Millisecond))
	return img, nil
}
