package domain

import (
	"context"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for created_at and updated_at.
// Fixed millisecond precision keeps lexical and chronological order identical,
// which matters because created_at is the table's sort key.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Post represents a blog post.
// A post is addressed in the store by the composite key (ID, CreatedAt).
// Posts are only visible to the public once Published is set.
type Post struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Title     string
	Content   string
	Slug      string
	Excerpt   string
	Author    string
	Published bool
	Views     int
}

// Key returns the composite key addressing p in the store.
func (p *Post) Key() PostKey {
	return PostKey{ID: p.ID, CreatedAt: p.CreatedAt}
}

// PostKey is the composite primary key of a post. Both parts are required for writes.
type PostKey struct {
	ID        string
	CreatedAt time.Time
}

// PostDraft holds the caller-supplied fields of a new post.
type PostDraft struct {
	Title     string
	Content   string
	Author    string
	Published bool
}

// PostUpdate is the allow-list of fields a partial update may touch.
// Nil fields are left unchanged.
type PostUpdate struct {
	Title     *string
	Content   *string
	Published *bool

	// LastUpdatedAt is the updated_at the caller last read. The new
	// updated_at is always later than it. Zero means the store reads it.
	LastUpdatedAt time.Time
}

// IsEmpty reports whether the update changes no content fields.
func (u PostUpdate) IsEmpty() bool {
	return u.Title == nil && u.Content == nil && u.Published == nil
}

// Status selects posts by publication state.
type Status string

const (
	StatusAll       Status = "all"
	StatusPublished Status = "published"
	StatusDraft     Status = "draft"
)

// ParseStatus maps free-form input onto a Status. Unknown values mean all.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPublished:
		return StatusPublished
	case StatusDraft:
		return StatusDraft
	default:
		return StatusAll
	}
}

// PostFilter narrows a full listing.
type PostFilter struct {
	Status     Status
	SearchTerm string
}

// Matches reports whether p satisfies the filter.
// Search is a case-insensitive substring match on title or content.
func (f PostFilter) Matches(p *Post) bool {
	switch f.Status {
	case StatusPublished:
		if !p.Published {
			return false
		}
	case StatusDraft:
		if p.Published {
			return false
		}
	}

	term := strings.ToLower(strings.TrimSpace(f.SearchTerm))
	if term == "" {
		return true
	}

	return strings.Contains(strings.ToLower(p.Title), term) ||
		strings.Contains(strings.ToLower(p.Content), term)
}

// SitemapEntry is the projection of a published post used for the sitemap.
type SitemapEntry struct {
	Slug      string
	UpdatedAt time.Time
}

// PostRepository is the persistence boundary for posts.
// Listing operations scan the whole collection and cost O(collection).
type PostRepository interface {
	ListAll(ctx context.Context, filter PostFilter) ([]*Post, error)
	ListPublished(ctx context.Context) ([]*Post, error)
	Search(ctx context.Context, term string) ([]*Post, error)
	ListForSitemap(ctx context.Context) ([]SitemapEntry, error)

	GetByID(ctx context.Context, id string) (*Post, error)
	// GetBySlug returns the first published post with the slug, in scan order.
	GetBySlug(ctx context.Context, slug string) (*Post, error)
	// GetBySlugAny prefers a published post but falls back to a draft.
	GetBySlugAny(ctx context.Context, slug string) (*Post, error)

	Create(ctx context.Context, draft PostDraft) (*Post, error)
	Update(ctx context.Context, key PostKey, update PostUpdate) (*Post, error)
	Delete(ctx context.Context, key PostKey) error
	IncrementViews(ctx context.Context, key PostKey) error
}
