package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"shelf/src/core/querycache"
	"shelf/src/infrastructure/log"
)

var warmCacheCmd = &cobra.Command{
	Use:   "warm-cache",
	Short: "Pre-populate the query embedding cache",
	Long: `warm-cache reads queries from a file, one per line, and stores their
embeddings in the query cache so the first real search for each is a hit.`,
	RunE: runWarmCache,
}

func init() {
	rootCmd.AddCommand(warmCacheCmd)
	warmCacheCmd.Flags().StringP("file", "f", "", "File with one query per line")
	warmCacheCmd.MarkFlagRequired("file")
}

func runWarmCache(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path, _ := cmd.Flags().GetString("file")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open query file: %w", err)
	}
	queries, err := querycache.ReadQueries(f)
	f.Close()
	if err != nil {
		return err
	}

	provider, err := newEmbeddingProvider()
	if err != nil {
		return err
	}
	if provider == nil {
		return fmt.Errorf("no embedding provider configured")
	}

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

	bg := querycache.NewBackground(1, len(queries)+1)
	cache := querycache.NewCache(provider, store, nil, bg, cacheConfig())

	bar := progressbar.Default(int64(len(queries)), "warming")
	stats, err := cache.Warm(ctx, queries, func() { _ = bar.Add(1) })
	_ = bar.Finish()

	if err := bg.Close(ctx); err != nil {
		log.Error(err, "Failed to flush cache touches")
	}
	if err != nil {
		return err
	}

	log.Info("Cache warmed",
		"queries", len(queries),
		"hits", stats.Hits,
		"misses", stats.Misses,
		"failed", stats.Failed,
		"duplicate", stats.Duplicate,
		"cacheErrors", stats.CacheErrors,
	)
	return nil
}
