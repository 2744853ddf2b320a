package cli

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/youruser/collageapp/internal/api"
	"github.com/youruser/collageapp/internal/collage"
	"github.com/youruser/collageapp/internal/export"
)

const shutdownTimeout = 10 * time.Second

// ServeCommand runs the HTTP API until the command context is cancelled.
func (c *CLI) ServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the collage HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.setup(ctx, false)
			if err != nil {
				return err
			}
			if !c.verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			srv := &http.Server{
				Addr:              a.Config.Listen,
				Handler:           api.NewRouter(a),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.Logger.Info("starting server", "addr", srv.Addr, "data_dir", a.Config.DataDir)
				if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				a.Logger.Info("shutting down")
				return srv.Shutdown(sctx)
			})
			g.Go(func() error {
				prune(gctx, pruneInterval(a.Config.Export.ShareTTL, a.Config.SessionTTL), a.Sharer, a.Sessions)
				return nil
			})
			return g.Wait()
		},
	}
}

// pruner is anything holding entries that expire.
type pruner interface {
	Prune() int
}

var (
	_ pruner = (*export.Sharer)(nil)
	_ pruner = (*collage.Store)(nil)
)

// pruneInterval is half the shortest positive ttl, but at least a minute.
func pruneInterval(ttls ...time.Duration) time.Duration {
	shortest := time.Duration(0)
	for _, ttl := range ttls {
		if ttl > 0 && (shortest == 0 || ttl < shortest) {
			shortest = ttl
		}
	}
	return max(shortest/2, time.Minute)
}

// prune drops expired shares and sessions every interval until ctx is done.
func prune(ctx context.Context, interval time.Duration, ps ...pruner) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, p := range ps {
				p.Prune()
			}
		}
	}
}
