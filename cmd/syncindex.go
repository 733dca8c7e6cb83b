package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"shelf/src/infrastructure/log"
	"shelf/src/storage/postgres/bookmarkctrl"
	"shelf/src/storage/weaviate"
)

var syncIndexCmd = &cobra.Command{
	Use:   "sync-index",
	Short: "Copy bookmark embeddings into the Weaviate hybrid index",
	Long: `sync-index writes every non-archived bookmark that has an embedding into
the Weaviate class used by the weaviate ranking backend. Bookmarks already in
the index are replaced.`,
	RunE: runSyncIndex,
}

func init() {
	rootCmd.AddCommand(syncIndexCmd)
	syncIndexCmd.Flags().String("user", "", "Only sync this user's bookmarks")
	syncIndexCmd.Flags().Int("batch-size", 100, "Bookmarks per batch")
}

func runSyncIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	userID := uuid.Nil
	if raw, _ := cmd.Flags().GetString("user"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", raw, err)
		}
		userID = id
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive")
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	index, err := newBookmarkIndex(ctx)
	if err != nil {
		return err
	}

	bookmarks := bookmarkctrl.NewBookmarkService(db)
	total, err := bookmarks.CountIndexable(ctx, userID)
	if err != nil {
		return err
	}

	bar := progressbar.Default(total, "indexing")
	err = bookmarks.FindIndexable(ctx, userID, batchSize, func(batch []bookmarkctrl.Bookmark) error {
		docs := make([]weaviate.Document, len(batch))
		for i := range batch {
			docs[i] = toDocument(&batch[i])
		}
		if err := index.Index(ctx, docs); err != nil {
			return err
		}
		return bar.Add(len(batch))
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	log.Info("Index synced", "bookmarks", total)
	return nil
}

func toDocument(b *bookmarkctrl.Bookmark) weaviate.Document {
	doc := weaviate.Document{
		BookmarkID:  b.ID,
		UserID:      b.UserID,
		URL:         b.URL,
		Title:       b.Title,
		Description: b.Description,
		SiteName:    b.SiteName,
		ImageURL:    b.ImageURL,
		Notes:       b.Notes,
		ContentText: b.ContentText,
		CreatedAt:   b.CreatedAt,
	}
	if b.Embedding != nil {
		doc.Vector = b.Embedding.Slice()
	}
	return doc
}
