// Package app assembles the collage services from a Config.
package app

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/youruser/collageapp/internal/acquire"
	"github.com/youruser/collageapp/internal/collage"
	"github.com/youruser/collageapp/internal/config"
	"github.com/youruser/collageapp/internal/export"
	imagepkg "github.com/youruser/collageapp/internal/image"
)

// App holds the wired services shared by the CLI and the HTTP server.
type App struct {
	Config   config.Config
	Logger   *log.Logger
	Composer *collage.Composer
	Sessions *collage.Store
	Sharer   *export.Sharer
	Media    *export.FileMediaStore
	Saver    *export.Saver
}

// New builds every service. Sessions live until base is cancelled.
func New(base context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	interp, err := imagepkg.Interpolator(cfg.Canvas.Interpolation)
	if err != nil {
		return nil, err
	}

	loader := imagepkg.NewSourceLoader()
	loader.FetchTimeout = cfg.Acquire.FetchTimeout
	loader.FetchAttempts = cfg.Acquire.FetchAttempts
	loader.RetryDelay = cfg.Acquire.RetryDelay
	loader.MaxBytes = cfg.Acquire.MaxBytes
	loader.Downsample = cfg.Acquire.Downsample
	loader.LocalRoot = cfg.Acquire.LocalRoot
	loader.NoLocal = !cfg.Acquire.AllowLocal && cfg.Acquire.LocalRoot == ""

	pipeline := acquire.New(loader, logger)
	pipeline.Concurrency = cfg.Acquire.Concurrency

	comp := imagepkg.NewCompositor()
	comp.Margin = cfg.Canvas.Margin
	comp.Interpolator = interp

	composer := collage.NewComposer(pipeline, comp, logger)
	composer.Width = cfg.Canvas.Width
	composer.Height = cfg.Canvas.Height
	composer.MaxEdge = cfg.Canvas.MaxEdge

	sharer, err := export.NewSharer(cfg.ShareDir(), cfg.Export.ShareTTL, logger)
	if err != nil {
		return nil, err
	}
	media, err := export.NewFileMediaStore(cfg.MediaDir(), cfg.Export.TwoPhase)
	if err != nil {
		return nil, err
	}

	sessions := collage.NewStore(base, composer)
	sessions.TTL = cfg.SessionTTL

	return &App{
		Config:   cfg,
		Logger:   logger,
		Composer: composer,
		Sessions: sessions,
		Sharer:   sharer,
		Media:    media,
		Saver:    export.NewSaver(media, cfg.Export.Album, cfg.Export.JPEGQuality, logger),
	}, nil
}
