// Package serve implements the serve command.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/longrec/internal/app"
	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/httpserver"
	"github.com/tphakala/longrec/internal/logger"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder as a daemon controlled over HTTP",
		Long:  "Keep the capture device open and start or stop recordings through the HTTP control API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&settings.WebServer.Listen, "listen", settings.WebServer.Listen, "Listen address of the control API")
	if err := viper.BindPFlag("webserver.listen", cmd.Flags().Lookup("listen")); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func run(parent context.Context, settings *conf.Settings) error {
	if parent == nil {
		parent = context.Background()
	}
	log := logger.Global().Module("serve")

	a, err := app.New(parent, settings)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := httpserver.Options{}
	if settings.Metrics.Enabled {
		opts.Metrics = a.Metrics.Handler()
	}
	if a.Catalog != nil {
		opts.Catalog = a.Catalog
	}
	srv := httpserver.New(settings, a.Recorder, opts, logger.Global().Module("httpserver"))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		// the session is finalized before integrations close
		return a.Recorder.Stop()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
