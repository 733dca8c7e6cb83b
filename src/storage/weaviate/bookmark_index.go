package weaviate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate/entities/models"

	"shelf/src/core/search"
)

const DefaultBookmarkClass = "Bookmark"

var bookmarkFields = []string{"bookmarkId", "userId", "url", "title", "description", "siteName", "imageUrl", "notes", "createdAt"}

// bookmarkProperties is the schema of the bookmark class. Ids use field
// tokenization so they only match exactly.
func bookmarkProperties() []*models.Property {
	text := func(name, desc string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"text"}, Description: desc}
	}
	id := func(name, desc string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"text"}, Description: desc, Tokenization: "field"}
	}
	return []*models.Property{
		id("bookmarkId", "Bookmark id"),
		id("userId", "Owner of the bookmark"),
		text("url", "Saved URL"),
		text("title", "Page title"),
		text("description", "Page description"),
		text("siteName", "Site name"),
		id("imageUrl", "Preview image"),
		text("notes", "User notes"),
		text("contentText", "Readable page text"),
		{Name: "createdAt", DataType: []string{"date"}, Description: "When the bookmark was saved"},
	}
}

// Document is a bookmark as written to the index
type Document struct {
	BookmarkID  uuid.UUID
	UserID      uuid.UUID
	URL         string
	Title       *string
	Description *string
	SiteName    *string
	ImageURL    *string
	Notes       *string
	ContentText *string
	CreatedAt   time.Time
	Vector      []float32
}

// BookmarkIndex ranks a user's bookmarks with Weaviate hybrid search
type BookmarkIndex struct {
	sdk       *SDK
	className string
	alpha     float32
}

func NewBookmarkIndex(sdk *SDK, className string, alpha float32) *BookmarkIndex {
	if className == "" {
		className = DefaultBookmarkClass
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultHybridConfig("").Alpha
	}
	return &BookmarkIndex{sdk: sdk, className: className, alpha: alpha}
}

// EnsureSchema creates the bookmark class when missing
func (b *BookmarkIndex) EnsureSchema(ctx context.Context) error {
	return b.sdk.EnsureSchema(ctx, b.className, bookmarkProperties())
}

// Index writes docs, replacing earlier versions of the same bookmarks
func (b *BookmarkIndex) Index(ctx context.Context, docs []Document) error {
	objects := make([]VectorObject, len(docs))
	for i, d := range docs {
		objects[i] = VectorObject{
			ID:         d.BookmarkID.String(),
			Vector:     d.Vector,
			Properties: documentProperties(d),
		}
	}
	return b.sdk.BatchUpsertVectors(ctx, b.className, objects)
}

// Rank implements search.Ranker
func (b *BookmarkIndex) Rank(ctx context.Context, userID uuid.UUID, embedding []float32, text string, limit int) ([]search.Result, error) {
	config := DefaultHybridConfig(text)
	config.Alpha = b.alpha
	config.Fields = bookmarkFields
	config.Limit = limit
	config.FilterPath = "userId"
	config.FilterValue = userID.String()

	hits, err := b.sdk.QueryHybrid(ctx, b.className, embedding, config)
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, 0, len(hits))
	for _, hit := range hits {
		r, err := resultFromProperties(hit.Properties)
		if err != nil {
			return nil, err
		}
		// the where filter already scopes by user; this guards a
		// misconfigured tokenization
		if owner, _ := hit.Properties["userId"].(string); owner != userID.String() {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

func documentProperties(d Document) map[string]interface{} {
	props := map[string]interface{}{
		"bookmarkId": d.BookmarkID.String(),
		"userId":     d.UserID.String(),
		"url":        d.URL,
		"createdAt":  d.CreatedAt.UTC().Format(time.RFC3339),
	}
	optional := map[string]*string{
		"title":       d.Title,
		"description": d.Description,
		"siteName":    d.SiteName,
		"imageUrl":    d.ImageURL,
		"notes":       d.Notes,
		"contentText": d.ContentText,
	}
	for k, v := range optional {
		if v != nil {
			props[k] = *v
		}
	}
	return props
}

func resultFromProperties(props map[string]interface{}) (search.Result, error) {
	rawID, _ := props["bookmarkId"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return search.Result{}, fmt.Errorf("invalid bookmarkId %q in index: %w", rawID, err)
	}

	r := search.Result{
		ID:          id,
		Title:       optionalString(props["title"]),
		Description: optionalString(props["description"]),
		SiteName:    optionalString(props["siteName"]),
		ImageURL:    optionalString(props["imageUrl"]),
		Notes:       optionalString(props["notes"]),
	}
	r.URL, _ = props["url"].(string)
	if raw, ok := props["createdAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			r.CreatedAt = t
		}
	}
	return r, nil
}

func optionalString(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
