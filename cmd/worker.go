package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shelf/src/infrastructure/job"
	"shelf/src/infrastructure/log"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Apply cache touch messages from AMQP to the cache store",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := job.NewLoggerAdapter()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	store, closeStore, err := newCacheStore(ctx, db)
	if err != nil {
		return err
	}
	defer closeStore()

	transport, err := job.NewAMQPTransport(viper.GetString("amqp.url"), logger)
	if err != nil {
		return err
	}
	defer transport.Close()

	router, err := job.NewTouchRouter(transport.Subscriber, job.NewTouchProcessor(store, logger, 0), logger)
	if err != nil {
		return fmt.Errorf("failed to create touch router: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Run(ctx)
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
	case err := <-errCh:
		return fmt.Errorf("touch router stopped: %w", err)
	}

	log.Info("Shutting down...")
	cancel()
	if err := router.Close(); err != nil {
		log.Error(err, "Failed to close router")
	}
	log.Info("Router stopped")

	return nil
}
