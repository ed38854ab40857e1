package main

import (
	"PhotoUploader/internal/config"
	"PhotoUploader/internal/logging"
	"PhotoUploader/pkg/manifest"
	"PhotoUploader/pkg/server"
	"PhotoUploader/pkg/sink"
	"PhotoUploader/pkg/tokens"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func openBackend(ctx context.Context, cfg config.TokensConfig) (tokens.Repository, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := tokens.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	default:
		return tokens.NewFileRepository(cfg.File), func() {}, nil
	}
}

func openTokens(ctx context.Context, cfg config.TokensConfig) (tokens.Repository, func(), error) {
	repo, closeFn, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.CacheSize > 0 {
		cached, err := tokens.NewCachedRepository(repo, cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		repo = cached
	}
	return repo, closeFn, nil
}

// runAdmin handles the token management flags. It reports whether one ran.
func runAdmin(ctx context.Context, cfg config.TokensConfig, addToken, revokeToken, usageToken string) bool {
	if addToken == "" && revokeToken == "" && usageToken == "" {
		return false
	}

	if addToken != "" || revokeToken != "" {
		if cfg.Backend != "sqlite" {
			logging.GlobalLogger.Fatal("--add-token and --revoke-token need the sqlite token backend; edit the token file instead")
		}
		db, err := tokens.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			logging.GlobalLogger.Fatal("Failed to open token database: " + err.Error())
		}
		defer db.Close()
		if addToken != "" {
			if err := db.AddToken(ctx, addToken); err != nil {
				logging.GlobalLogger.Fatal(err.Error())
			}
			logging.GlobalLogger.Info("Token added")
		}
		if revokeToken != "" {
			if err := db.RemoveToken(ctx, revokeToken); err != nil {
				logging.GlobalLogger.Fatal(err.Error())
			}
			logging.GlobalLogger.Info(fmt.Sprintf("Token revoked; running servers stop accepting it within %s", cfg.CacheTTL))
		}
	}

	if usageToken != "" {
		repo, closeFn, err := openBackend(ctx, cfg)
		if err != nil {
			logging.GlobalLogger.Fatal("Failed to open tokens: " + err.Error())
		}
		defer closeFn()
		reporter, ok := repo.(tokens.UsageReporter)
		if !ok {
			logging.GlobalLogger.Fatal(fmt.Sprintf("Token backend %s cannot report usage", cfg.Backend))
		}
		totals, err := reporter.Totals(ctx, usageToken)
		if err != nil {
			logging.GlobalLogger.Fatal(err.Error())
		}
		fmt.Printf("uploads %d, files %d, bytes %s\n", totals.Uploads, totals.Files, humanize.IBytes(totals.Bytes))
	}
	return true
}

func openStore(cfg config.UploaderConfig) (sink.Store, error) {
	switch cfg.Storage.Backend {
	case "s3":
		store, err := sink.NewS3Store(sink.S3Config{
			Bucket:      cfg.Storage.S3Bucket,
			Prefix:      cfg.Storage.S3Prefix,
			Region:      cfg.Storage.S3Region,
			PartSize:    cfg.Storage.S3PartSize,
			Concurrency: cfg.Storage.S3Concurrency,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := sink.NewFileStore(cfg.FilePath, cfg.MinFreeBytes)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func main() {
	configPath := pflag.StringP("config", "c", "", "YAML config file")
	port := pflag.IntP("port", "p", 0, "listen port")
	filePath := pflag.String("file-path", "", "directory that receives uploads")
	staticDir := pflag.String("static-dir", "", "serve static files from this directory")
	logLevel := pflag.String("log-level", "", "debug, info, warn or error")
	addToken := pflag.String("add-token", "", "add a token to the sqlite token database and exit")
	revokeToken := pflag.String("revoke-token", "", "remove a token from the sqlite token database and exit")
	usageToken := pflag.String("usage", "", "print the recorded usage of a token and exit")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.GlobalLogger.Fatal("Failed to load config: " + err.Error())
	}
	if pflag.CommandLine.Changed("port") {
		cfg.Port = *port
	}
	if pflag.CommandLine.Changed("file-path") {
		cfg.FilePath = *filePath
	}
	if pflag.CommandLine.Changed("static-dir") {
		cfg.StaticDir = *staticDir
	}
	if pflag.CommandLine.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		logging.GlobalLogger.Fatal("Invalid config: " + err.Error())
	}
	config.Config = cfg

	level, err := logging.ParseLevel(config.Config.LogLevel)
	if err != nil {
		logging.GlobalLogger.Fatal(err.Error())
	}
	logging.GlobalLogger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runAdmin(ctx, config.Config.Tokens, *addToken, *revokeToken, *usageToken) {
		return
	}

	repo, closeTokens, err := openTokens(ctx, config.Config.Tokens)
	if err != nil {
		logging.GlobalLogger.Fatal("Failed to open tokens: " + err.Error())
	}
	defer closeTokens()

	store, err := openStore(config.Config)
	if err != nil {
		logging.GlobalLogger.Fatal("Failed to open storage: " + err.Error())
	}

	var manifests *manifest.Store
	if config.Config.ManifestDir != "" {
		manifests, err = manifest.NewStore(config.Config.ManifestDir)
		if err != nil {
			logging.GlobalLogger.Fatal(err.Error())
		}
	}

	srv := server.New(config.Config, repo, store, manifests)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Config.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.GlobalLogger.Info(fmt.Sprintf("Server starting on :%d (storage %s, tokens %s)", config.Config.Port, config.Config.Storage.Backend, config.Config.Tokens.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.GlobalLogger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Config.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.GlobalLogger.Fatal("Server stopped: " + err.Error())
	}
	logging.GlobalLogger.Info("Server stopped")
}
