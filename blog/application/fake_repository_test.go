package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dfryer1193/goblog/blog/content"
	"github.com/dfryer1193/goblog/blog/domain"
)

var errStoreDown = errors.New("store unavailable")

// fakePostRepository keeps posts in memory in insertion order.
type fakePostRepository struct {
	mu    sync.Mutex
	posts []*domain.Post
	next  int
	now   time.Time

	listCalls      int
	failList       bool
	failIncrements bool
	lastUpdate     domain.PostUpdate
}

var _ domain.PostRepository = (*fakePostRepository)(nil)

func newFakePostRepository() *fakePostRepository {
	return &fakePostRepository{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// seed stores a post created at the given offset from the base time.
func (r *fakePostRepository) seed(title string, published bool, age time.Duration) *domain.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	created := r.now.Add(-age)
	p := &domain.Post{
		ID:        fmt.Sprintf("post-%d", r.next),
		CreatedAt: created,
		UpdatedAt: created,
		Title:     title,
		Content:   "Content of " + title,
		Slug:      content.Slugify(title),
		Published: published,
	}
	r.posts = append(r.posts, p)
	clone := *p
	return &clone
}

func (r *fakePostRepository) ListAll(_ context.Context, filter domain.PostFilter) ([]*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.failList {
		return nil, &domain.InternalError{Op: "list posts", Err: errStoreDown}
	}
	var out []*domain.Post
	for _, p := range r.posts {
		if filter.Matches(p) {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakePostRepository) ListPublished(ctx context.Context) ([]*domain.Post, error) {
	return r.ListAll(ctx, domain.PostFilter{Status: domain.StatusPublished})
}

func (r *fakePostRepository) Search(ctx context.Context, term string) ([]*domain.Post, error) {
	return r.ListAll(ctx, domain.PostFilter{Status: domain.StatusPublished, SearchTerm: term})
}

func (r *fakePostRepository) ListForSitemap(ctx context.Context) ([]domain.SitemapEntry, error) {
	posts, err := r.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.SitemapEntry, 0, len(posts))
	for _, p := range posts {
		entries = append(entries, domain.SitemapEntry{Slug: p.Slug, UpdatedAt: p.UpdatedAt})
	}
	return entries, nil
}

func (r *fakePostRepository) GetByID(_ context.Context, id string) (*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakePostRepository) GetBySlug(_ context.Context, slug string) (*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.Slug == slug && p.Published {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakePostRepository) GetBySlugAny(ctx context.Context, slug string) (*domain.Post, error) {
	if p, err := r.GetBySlug(ctx, slug); err == nil {
		return p, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.Slug == slug {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakePostRepository) Create(_ context.Context, draft domain.PostDraft) (*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	p := &domain.Post{
		ID:        fmt.Sprintf("post-%d", r.next),
		CreatedAt: r.now,
		UpdatedAt: r.now,
		Title:     draft.Title,
		Content:   draft.Content,
		Slug:      content.Slugify(draft.Title),
		Excerpt:   content.Excerpt(draft.Content),
		Author:    draft.Author,
		Published: draft.Published,
	}
	r.posts = append(r.posts, p)
	clone := *p
	return &clone, nil
}

func (r *fakePostRepository) Update(_ context.Context, key domain.PostKey, update domain.PostUpdate) (*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.find(key)
	if p == nil {
		return nil, domain.ErrNotFound
	}
	r.lastUpdate = update
	p.UpdatedAt = p.UpdatedAt.Add(time.Second)
	if update.Title != nil {
		p.Title = *update.Title
		p.Slug = content.Slugify(*update.Title)
	}
	if update.Content != nil {
		p.Content = *update.Content
		p.Excerpt = content.Excerpt(*update.Content)
	}
	if update.Published != nil {
		p.Published = *update.Published
	}
	clone := *p
	return &clone, nil
}

func (r *fakePostRepository) Delete(_ context.Context, key domain.PostKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.posts {
		if p.ID == key.ID && p.CreatedAt.Equal(key.CreatedAt) {
			r.posts = append(r.posts[:i], r.posts[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakePostRepository) IncrementViews(_ context.Context, key domain.PostKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIncrements {
		return &domain.InternalError{Op: "increment views", Err: errStoreDown}
	}
	p := r.find(key)
	if p == nil {
		return domain.ErrNotFound
	}
	p.Views++
	return nil
}

func (r *fakePostRepository) views(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID == id {
			return p.Views
		}
	}
	return -1
}

func (r *fakePostRepository) find(key domain.PostKey) *domain.Post {
	for _, p := range r.posts {
		if p.ID == key.ID && p.CreatedAt.Equal(key.CreatedAt) {
			return p
		}
	}
	return nil
}
