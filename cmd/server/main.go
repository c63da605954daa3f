package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"verify-gate/internal/config"
	"verify-gate/internal/factory"
	"verify-gate/internal/util"

	"golang.org/x/sync/errgroup"
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      f.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	servers := []*http.Server{server}
	if cfg.Server.EnableTLS {
		server.TLSConfig = f.TLSManager().GetTLSConfig()

		// autocert answers HTTP-01 challenges on the plain port
		if acm := f.TLSManager().GetAutocertManager(); acm != nil {
			servers = append(servers, &http.Server{
				Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:     acm.HTTPHandler(nil),
				ReadTimeout: cfg.Server.ReadTimeout,
			})
		}
	}
	f.LogTransport()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, f, cfg, servers); err != nil {
		util.Error("Server stopped with error", util.ErrorField(err))
		f.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, f *factory.Factory, cfg *config.Config, servers []*http.Server) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return f.VerificationService().RunSweeper(ctx)
	})

	for i, srv := range servers {
		srv := srv
		tlsServer := i == 0 && cfg.Server.EnableTLS
		g.Go(func() error {
			util.Info("Server started",
				util.String("address", srv.Addr),
				util.Bool("tls_enabled", tlsServer),
			)

			var err error
			if tlsServer {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		util.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
