package bookmarkctrl

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"shelf/src/core/search"
)

// DefaultHybridFunction is the SQL function that scores bookmarks by a
// weighted mix of vector similarity and text match
const DefaultHybridFunction = "match_bookmarks_hybrid"

var functionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type hybridRow struct {
	BookmarkID  uuid.UUID `gorm:"column:bookmark_id"`
	URL         string    `gorm:"column:url"`
	Title       *string   `gorm:"column:title"`
	Description *string   `gorm:"column:description"`
	SiteName    *string   `gorm:"column:site_name"`
	ImageURL    *string   `gorm:"column:image_url"`
	Notes       *string   `gorm:"column:notes"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// HybridRanker ranks bookmarks through a Postgres function taking
// (user id, query embedding, query text, match count)
type HybridRanker struct {
	db       *gorm.DB
	function string
}

func NewHybridRanker(db *gorm.DB, function string) (*HybridRanker, error) {
	if function == "" {
		function = DefaultHybridFunction
	}
	if !functionName.MatchString(function) {
		return nil, fmt.Errorf("invalid ranking function name %q", function)
	}
	return &HybridRanker{db: db, function: function}, nil
}

func (r *HybridRanker) Rank(ctx context.Context, userID uuid.UUID, embedding []float32, text string, limit int) ([]search.Result, error) {
	// the vector travels as a pgvector literal, e.g. [0.1,0.2]
	literal := pgvector.NewVector(embedding).String()
	stmt := fmt.Sprintf("SELECT * FROM %s(?, ?::vector, ?, ?)", r.function)

	var rows []hybridRow
	if err := r.db.WithContext(ctx).Raw(stmt, userID, literal, text, limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("hybrid ranking failed: %w", err)
	}

	results := make([]search.Result, len(rows))
	for i, row := range rows {
		results[i] = search.Result{
			ID:          row.BookmarkID,
			URL:         row.URL,
			Title:       row.Title,
			Description: row.Description,
			SiteName:    row.SiteName,
			ImageURL:    row.ImageURL,
			Notes:       row.Notes,
			CreatedAt:   row.CreatedAt,
		}
	}
	return results, nil
}

// ActiveSet reports which bookmarks are still live for a user
type ActiveSet interface {
	ActiveIDs(ctx context.Context, userID uuid.UUID, bookmarkIDs []uuid.UUID) (map[uuid.UUID]struct{}, error)
}

// ActiveRanker drops hits that were archived or deleted since an external
// index was last synced. Order of the remaining hits is kept.
type ActiveRanker struct {
	next      search.Ranker
	bookmarks ActiveSet
}

func NewActiveRanker(next search.Ranker, bookmarks ActiveSet) *ActiveRanker {
	return &ActiveRanker{next: next, bookmarks: bookmarks}
}

func (r *ActiveRanker) Rank(ctx context.Context, userID uuid.UUID, embedding []float32, text string, limit int) ([]search.Result, error) {
	hits, err := r.next.Rank(ctx, userID, embedding, text, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return hits, nil
	}

	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	active, err := r.bookmarks.ActiveIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, 0, len(hits))
	for _, h := range hits {
		if _, ok := active[h.ID]; ok {
			results = append(results, h)
		}
	}
	return results, nil
}
