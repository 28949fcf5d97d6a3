package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/apexwallet/internal/metrics"
	"github.com/betbot/apexwallet/internal/server"
	"github.com/betbot/apexwallet/internal/store"
	"github.com/betbot/apexwallet/internal/wallet"
	"github.com/betbot/apexwallet/pkg/config"
	"github.com/betbot/apexwallet/pkg/logger"
	"github.com/betbot/apexwallet/pkg/secretstore"
	"github.com/betbot/apexwallet/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("APEXWALLET_CONFIG"), "YAML config file")
	listen := flag.String("listen", "", "HTTP listen address (overrides server.listen)")
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logrus.Fatalf("init logger: %v", err)
	}

	if err := loadSecrets(cfg); err != nil {
		logrus.Fatalf("load secrets: %v", err)
	}

	ledger, err := store.Open(cfg.Storage.LedgerPath)
	if err != nil {
		logrus.Fatalf("open ledger: %v", err)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.Metrics.Listen != "" {
		if _, err := metrics.StartAsync(rootCtx, cfg.Metrics.Listen); err != nil {
			logrus.Errorf("metrics/pprof start failed: %v", err)
		} else {
			logrus.Infof("metrics/pprof listening on %s (expvar:/debug/vars, pprof:/debug/pprof)", cfg.Metrics.Listen)
		}
	}

	sessions := wallet.NewSessions(wallet.NewAPEXDialer(cfg.Venue))
	w := wallet.New(
		wallet.ConfigFrom(cfg.Wallet),
		wallet.AccountsFrom(cfg.Accounts),
		sessions,
		wallet.WithRecorder(ledger),
	)

	sweeper := w.NewSweeper(cfg.Wallet.SweepInterval.Duration)
	sweeper.Start(rootCtx)

	srv := server.New(server.Config{
		ReadTimeout: cfg.Server.ReadTimeout.Duration,
		SendTimeout: cfg.Server.SendTimeout.Duration,
	}, w)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"listen":    cfg.Server.Listen,
			"transport": cfg.Venue.Transport,
			"accounts":  len(cfg.Accounts),
		}).Info("apexwallet listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("http server error: %v", err)
			rootCancel()
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case <-stopCh:
	case <-rootCtx.Done():
	}
	logrus.Info("stopping")
	rootCancel()

	// Stop taking requests before the venue sessions and ledger go away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	m := shutdown.NewManager()
	m.OnShutdown("sweeper", func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})
	m.OnShutdown("venue sessions", func(ctx context.Context) error { return w.Close() })
	m.OnShutdown("ledger", func(ctx context.Context) error { return ledger.Close() })
	m.Shutdown(shutdownCtx)

	logrus.Info("apexwallet stopped")
}

// loadSecrets fills credentials missing from the config file from the badger
// secret store, when one is configured.
func loadSecrets(cfg *config.Config) error {
	if cfg.Secrets.Path == "" {
		return nil
	}
	key, err := secretstore.ParseKey(cfg.Secrets.Key)
	if err != nil {
		return err
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Secrets.Path,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return err
	}
	defer ss.Close()

	for i := range cfg.Accounts {
		if err := ss.FillAccount(&cfg.Accounts[i]); err != nil {
			return err
		}
	}
	return nil
}
