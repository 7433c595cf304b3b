package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/goliatone/go-orders-master/httpapi"
	"github.com/goliatone/go-orders-master/internal/config"
	"github.com/goliatone/go-orders-master/internal/logging"
	"github.com/goliatone/go-orders-master/pkg/di"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "orders-master",
		Usage: "restaurant order dashboard backend",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the HTTP API and consume order events",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides ORDERS_HTTP_ADDR"},
				},
				Action: serve,
			},
			{
				Name:  "schema",
				Usage: "create the tables of the configured layout",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "layout", Usage: "legacy or orders_table, overrides ORDERS_LAYOUT"},
				},
				Action: createSchema,
			},
			{
				Name:  "purge",
				Usage: "purge the caches of a running server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server", Value: "http://localhost:8080", Usage: "server base URL"},
					&cli.StringFlag{Name: "target", Value: httpapi.PurgeAll, Usage: "all, orders or counts"},
					&cli.StringFlag{Name: "scope", Usage: "role scope for counts, e.g. staff or staff:8"},
				},
				Action: purge,
			},
		},
	}
}

func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format), nil
}

func serve(c *cli.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	container, err := di.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := container.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           container.API().Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func createSchema(c *cli.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if layout := c.String("layout"); layout != "" {
		cfg.Layout = layout
	}

	container, err := di.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	if err := container.CreateSchema(c.Context); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"layout": cfg.Layout, "driver": cfg.DB.Driver}).Info("schema created")
	return nil
}

func purge(c *cli.Context) error {
	query := url.Values{"target": {c.String("target")}}
	if scope := c.String("scope"); scope != "" {
		query.Set("scope", scope)
	}
	endpoint := strings.TrimRight(c.String("server"), "/") + "/cache/purge?" + query.Encode()

	req, err := http.NewRequestWithContext(c.Context, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(httpapi.HeaderRole, "admin")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("purge failed: %s: %s", resp.Status, body)
	}
	fmt.Fprint(c.App.Writer, string(body))
	return nil
}
