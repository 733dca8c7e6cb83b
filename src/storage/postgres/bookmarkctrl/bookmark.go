package bookmarkctrl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"shelf/src/core/search"
)

// Bookmark is a saved URL or note. Rows are written by the bookmark API;
// this package only reads them.
type Bookmark struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	URL         string           `gorm:"not null" json:"url"`
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	SiteName    *string          `json:"site_name"`
	ImageURL    *string          `json:"image_url"`
	Notes       *string          `json:"notes"`
	ContentText *string          `json:"-"`
	Archived    bool             `gorm:"not null;default:false" json:"archived"`
	Embedding   *pgvector.Vector `gorm:"type:vector" json:"-"`
	CreatedAt   time.Time        `json:"created_at"`
	Tags        []BookmarkTag    `gorm:"foreignKey:BookmarkID" json:"-"`
}

func (Bookmark) TableName() string {
	return "bookmarks"
}

type BookmarkTag struct {
	BookmarkID uuid.UUID `gorm:"type:uuid;primaryKey" json:"bookmark_id"`
	Tag        string    `gorm:"primaryKey" json:"tag"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
}

func (BookmarkTag) TableName() string {
	return "bookmark_tags"
}

// resultColumns are the bookmark columns a search result needs
var resultColumns = []string{"id", "user_id", "url", "title", "description", "site_name", "image_url", "notes", "created_at"}

type BookmarkService struct {
	db *gorm.DB
}

func NewBookmarkService(db *gorm.DB) *BookmarkService {
	return &BookmarkService{db: db}
}

// SearchKeyword matches the filter by case-insensitive substring against the
// user's non-archived bookmarks, newest first. A domain filter matches the
// URL only; a text filter matches any of title, notes, content text,
// description and URL.
func (s *BookmarkService) SearchKeyword(ctx context.Context, filter search.KeywordFilter) ([]search.Result, error) {
	var rows []Bookmark
	err := s.keywordQuery(ctx, filter).
		Preload("Tags", "user_id = ?", filter.UserID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search bookmarks: %w", err)
	}

	results := make([]search.Result, len(rows))
	for i := range rows {
		results[i] = toResult(&rows[i])
	}
	return results, nil
}

func (s *BookmarkService) keywordQuery(ctx context.Context, filter search.KeywordFilter) *gorm.DB {
	q := s.db.WithContext(ctx).
		Select(resultColumns).
		Where("user_id = ? AND archived = ?", filter.UserID, false).
		Order("created_at DESC").
		Limit(filter.Limit)

	if filter.Domain != "" {
		return q.Where("url ILIKE ?", likePattern(filter.Domain))
	}
	return q.Where(
		"(title ILIKE @p OR notes ILIKE @p OR content_text ILIKE @p OR description ILIKE @p OR url ILIKE @p)",
		sql.Named("p", likePattern(filter.Text)),
	)
}

// ActiveIDs returns which of bookmarkIDs still exist, belong to userID and
// are not archived.
func (s *BookmarkService) ActiveIDs(ctx context.Context, userID uuid.UUID, bookmarkIDs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	active := make(map[uuid.UUID]struct{}, len(bookmarkIDs))
	if len(bookmarkIDs) == 0 {
		return active, nil
	}

	var ids []uuid.UUID
	err := s.activeQuery(ctx, userID, bookmarkIDs).Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check bookmarks: %w", err)
	}

	for _, id := range ids {
		active[id] = struct{}{}
	}
	return active, nil
}

func (s *BookmarkService) activeQuery(ctx context.Context, userID uuid.UUID, bookmarkIDs []uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).Model(&Bookmark{}).
		Where("user_id = ? AND archived = ? AND id IN ?", userID, false, bookmarkIDs)
}

func (s *BookmarkService) TagsFor(ctx context.Context, userID uuid.UUID, bookmarkIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	tags := make(map[uuid.UUID][]string, len(bookmarkIDs))
	if len(bookmarkIDs) == 0 {
		return tags, nil
	}

	var rows []BookmarkTag
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND bookmark_id IN ?", userID, bookmarkIDs).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get bookmark tags: %w", result.Error)
	}

	for _, row := range rows {
		tags[row.BookmarkID] = append(tags[row.BookmarkID], row.Tag)
	}
	return tags, nil
}

// FindIndexable calls fn with batches of non-archived bookmarks that carry
// an embedding. userID may be uuid.Nil to walk every user.
func (s *BookmarkService) FindIndexable(ctx context.Context, userID uuid.UUID, batchSize int, fn func(batch []Bookmark) error) error {
	var batch []Bookmark
	result := s.indexableQuery(ctx, userID).FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	})
	if result.Error != nil {
		return fmt.Errorf("failed to walk bookmarks: %w", result.Error)
	}
	return nil
}

// indexableQuery selects what the hybrid index holds. Tags are not indexed;
// search attaches them from Postgres.
func (s *BookmarkService) indexableQuery(ctx context.Context, userID uuid.UUID) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Bookmark{}).
		Where("archived = ? AND embedding IS NOT NULL", false)
	if userID != uuid.Nil {
		q = q.Where("user_id = ?", userID)
	}
	return q
}

// CountIndexable returns how many bookmarks FindIndexable would visit
func (s *BookmarkService) CountIndexable(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	if err := s.indexableQuery(ctx, userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count bookmarks: %w", err)
	}
	return n, nil
}

func toResult(b *Bookmark) search.Result {
	tags := make([]string, 0, len(b.Tags))
	for _, t := range b.Tags {
		tags = append(tags, t.Tag)
	}
	return search.Result{
		ID:          b.ID,
		URL:         b.URL,
		Title:       b.Title,
		Description: b.Description,
		SiteName:    b.SiteName,
		ImageURL:    b.ImageURL,
		Notes:       b.Notes,
		CreatedAt:   b.CreatedAt,
		Tags:        tags,
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps s for a substring ILIKE, escaping LIKE metacharacters
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
