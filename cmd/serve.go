/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "shelf/handler/http"
	"shelf/src/core/querycache"
	"shelf/src/core/search"
	"shelf/src/infrastructure/job"
	"shelf/src/infrastructure/log"
	"shelf/src/storage/postgres/bookmarkctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search server",
	Long:  `The serve command starts an HTTP server that provides bookmark search.`,
	RunE:  RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	provider, err := newEmbeddingProvider()
	if err != nil {
		return err
	}

	var (
		embeddings search.EmbeddingSource
		ranker     search.Ranker
		bg         *querycache.Background
	)
	if provider != nil {
		store, closeStore, err := newCacheStore(ctx, db)
		if err != nil {
			return err
		}
		defer closeStore()

		logger := job.NewLoggerAdapter()
		transport, err := newTouchTransport(logger)
		if err != nil {
			return err
		}
		defer transport.Close()

		// With the local transport this process applies its own touches;
		// with amqp the worker command does.
		if viper.GetString("touch.transport") == "local" {
			router, err := job.NewTouchRouter(transport.Subscriber, job.NewTouchProcessor(store, logger, 0), logger)
			if err != nil {
				return err
			}
			routerCtx, stopRouter := context.WithCancel(ctx)
			defer stopRouter()
			go func() {
				if err := router.Run(routerCtx); err != nil {
					log.Error(err, "Touch router stopped")
				}
			}()
			<-router.Running()
		}

		bg = querycache.NewBackground(viper.GetInt("touch.workers"), viper.GetInt("touch.queue_size"))
		embeddings = querycache.NewCache(provider, store, job.NewTouchPublisher(transport.Publisher, logger), bg, cacheConfig())

		ranker, err = newRanker(ctx, db)
		if err != nil {
			return err
		}
	}

	svc, err := search.NewService(embeddings, ranker, bookmarkctrl.NewBookmarkService(db), searchConfig())
	if err != nil {
		return err
	}

	handler := httpHdlr.NewHandler(svc, httpHdlr.SystemInfo{
		Embeddings:     provider != nil,
		CacheBackend:   viper.GetString("cache.backend"),
		RankingBackend: viper.GetString("ranking.backend"),
		Ping:           pingDatabase(db),
	}, []byte(viper.GetString("auth.jwt_secret")))

	// Setup gin router
	r := gin.New()
	r.Use(gin.Recovery())

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr, "embeddings", provider != nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout())
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	// Let queued touches reach the transport before it closes
	if bg != nil {
		if err := bg.Close(shutdownCtx); err != nil {
			log.Error(err, "Dropped pending cache touches")
		}
	}

	log.Info("Server exited")
	return nil
}
