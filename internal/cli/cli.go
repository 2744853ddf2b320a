// Package cli implements the collage command-line interface.
//
// Every command that produces a collage accepts the ordered image locators
// as arguments: local paths, file:// and data: URIs, or http(s) URLs. The
// number of locators picks the template. Logs go to stderr; results go to
// stdout.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/youruser/collageapp/internal/app"
	"github.com/youruser/collageapp/internal/collage"
	"github.com/youruser/collageapp/internal/config"
	"github.com/youruser/collageapp/internal/errors"
	imagepkg "github.com/youruser/collageapp/internal/image"
	"github.com/youruser/collageapp/internal/layout"
)

// CLI holds the state shared by all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
	width      int
	height     int
}

// New returns a CLI that logs to w.
func New(w io.Writer) *CLI {
	return &CLI{Logger: newLogger(w, log.InfoLevel)}
}

// Execute runs the collage command tree with the process arguments.
func Execute(ctx context.Context) error {
	return New(os.Stderr).RootCommand().ExecuteContext(ctx)
}

// RootCommand builds the root command with every subcommand registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "collage",
		Short:         "Compose photo collages from 2 to 9 images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.verbose {
				c.Logger.SetLevel(log.DebugLevel)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "path to a TOML config file")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	flags.IntVar(&c.width, "width", 0, "canvas width in pixels (default from config)")
	flags.IntVar(&c.height, "height", 0, "canvas height in pixels (default from config)")

	root.AddCommand(c.templatesCommand())
	root.AddCommand(c.composeCommand())
	root.AddCommand(c.saveCommand())
	root.AddCommand(c.shareCommand())
	root.AddCommand(c.ServeCommand())

	return root
}

// setup loads the configuration and wires the services for one command.
// Local commands read any path the invoking user can; serve keeps the
// configured local-file policy.
func (c *CLI) setup(ctx context.Context, local bool) (*app.App, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if local {
		cfg.Acquire.AllowLocal = true
		cfg.Acquire.LocalRoot = ""
	}
	logger := loggerFromContext(ctx)
	logger.SetLevel(cfg.Level(c.verbose))
	if c.width > 0 {
		cfg.Canvas.Width = c.width
	}
	if c.height > 0 {
		cfg.Canvas.Height = c.height
	}
	return app.New(ctx, cfg, logger)
}

// compose runs one collage for args on a freshly wired App.
func (c *CLI) compose(ctx context.Context, args []string) (*app.App, *collage.Result, error) {
	a, err := c.setup(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	prog := newProgress(a.Logger)
	res, err := a.Composer.Compose(ctx, collage.Request{Locators: args})
	if err != nil {
		return nil, nil, err
	}
	prog.done("composed collage", "images", len(args), "template", res.Template.Count)
	return a, res, nil
}

func (c *CLI) templatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the supported image counts and their layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, t := range layout.Templates() {
				var rects []string
				for _, r := range t.Layout(1, 1) {
					rects = append(rects, r.String())
				}
				fmt.Fprintf(out, "%d\t%s\n", t.Count, strings.Join(rects, " "))
			}
			return nil
		},
	}
}

func (c *CLI) composeCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compose LOCATOR...",
		Short: "Compose a collage and write it to a file",
		Long:  "Compose a collage and write it to a file. The format follows the output extension (.png, .jpg).",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := imaging.FormatFromFilename(output); err != nil {
				return errors.New(errors.ErrCodeInvalidInput, "unsupported output format %q", filepath.Ext(output))
			}
			a, res, err := c.compose(cmd.Context(), args)
			if err != nil {
				return err
			}
			if err := writeImage(output, res, a.Config.Export.JPEGQuality); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "collage.png", "output file")
	return cmd
}

func (c *CLI) saveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save LOCATOR...",
		Short: "Compose a collage and save it into the media library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, res, err := c.compose(cmd.Context(), args)
			if err != nil {
				return err
			}
			rec, err := a.Saver.Save(cmd.Context(), res.Image)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.Media.Path(rec))
			return nil
		},
	}
}

func (c *CLI) shareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "share LOCATOR...",
		Short: "Compose a collage and stage it for sharing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, res, err := c.compose(cmd.Context(), args)
			if err != nil {
				return err
			}
			sh, err := a.Sharer.Share(cmd.Context(), res.Image)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sh.Path)
			return nil
		},
	}
}

func writeImage(path string, res *collage.Result, quality int) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return imagepkg.EncodeFor(f, res.Image, path, quality)
}
