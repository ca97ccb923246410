package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/dfryer1193/goblog/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	minTitleLength   = 3
	maxTitleLength   = 200
	minContentLength = 10
)

// CreatePostInput is the caller-supplied content of a new post.
type CreatePostInput struct {
	Title     string
	Content   string
	Published bool
}

// UpdatePostInput is a partial update. Nil fields are left unchanged.
type UpdatePostInput struct {
	Title     *string
	Content   *string
	Published *bool
}

// PostService implements the post operations exposed over HTTP. It validates
// input before any store call and keeps the published post cache coherent.
type PostService struct {
	repo    domain.PostRepository
	queries *PostQueryService
}

func NewPostService(repo domain.PostRepository, queries *PostQueryService) *PostService {
	return &PostService{
		repo:    repo,
		queries: queries,
	}
}

// Create validates and stores a new post authored by author.
func (s *PostService) Create(ctx context.Context, author string, in CreatePostInput) (*domain.Post, error) {
	if author == "" {
		return nil, fmt.Errorf("create post: %w", domain.ErrUnauthorized)
	}
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	post, err := s.repo.Create(ctx, domain.PostDraft{
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Author:    author,
		Published: in.Published,
	})
	if err != nil {
		return nil, err
	}

	s.queries.Invalidate()
	log.Info().Str("postID", post.ID).Str("author", author).Msg("Created post")
	return post, nil
}

// Update applies a partial update to the post with the given id.
// The post is looked up first to resolve its created_at sort key.
func (s *PostService) Update(ctx context.Context, id string, in UpdatePostInput) (*domain.Post, error) {
	update := domain.PostUpdate{Title: in.Title, Content: in.Content, Published: in.Published}
	if update.IsEmpty() {
		return nil, domain.NewValidationError("", "no fields to update")
	}

	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return nil, err
		}
		title := strings.TrimSpace(*in.Title)
		update.Title = &title
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
		update.Content = in.Content
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	update.LastUpdatedAt = existing.UpdatedAt

	updated, err := s.repo.Update(ctx, existing.Key(), update)
	if err != nil {
		return nil, err
	}

	s.queries.Invalidate()
	log.Info().Str("postID", id).Msg("Updated post")
	return updated, nil
}

// Delete removes the post with the given id, reporting ErrNotFound if it does not exist.
func (s *PostService) Delete(ctx context.Context, id string) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, existing.Key()); err != nil {
		return err
	}

	s.queries.Invalidate()
	log.Info().Str("postID", id).Msg("Deleted post")
	return nil
}

// GetByID returns the post with the given id. Drafts are reported as not
// found unless the caller is authenticated.
func (s *PostService) GetByID(ctx context.Context, id string, authenticated bool) (*domain.Post, error) {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !post.Published && !authenticated {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	return post, nil
}

// GetBySlug resolves a slug. Anonymous callers only ever see published posts
// and each anonymous read counts as a view. A failed view increment is
// logged and otherwise ignored.
func (s *PostService) GetBySlug(ctx context.Context, slug string, authenticated bool) (*domain.Post, error) {
	if authenticated {
		return s.repo.GetBySlugAny(ctx, slug)
	}

	post, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if s.recordView(ctx, post) {
		post.Views++
	}
	return post, nil
}

// IncrementView counts a view of the published post with the given id.
// It never fails; problems are logged.
func (s *PostService) IncrementView(ctx context.Context, id string) {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			metrics.ViewIncrementFailures.Inc()
		}
		log.Warn().Err(err).Str("postID", id).Msg("Failed to resolve post for view increment")
		return
	}

	if !post.Published {
		return
	}

	s.recordView(ctx, post)
}

// Sitemap returns the slug and last modification time of every published post.
func (s *PostService) Sitemap(ctx context.Context) ([]domain.SitemapEntry, error) {
	return s.repo.ListForSitemap(ctx)
}

func (s *PostService) recordView(ctx context.Context, post *domain.Post) bool {
	if err := s.repo.IncrementViews(ctx, post.Key()); err != nil {
		metrics.ViewIncrementFailures.Inc()
		log.Warn().Err(err).Str("postID", post.ID).Msg("Failed to increment views")
		return false
	}
	return true
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n < minTitleLength || n > maxTitleLength {
		return domain.NewValidationError("title", "must be between %d and %d characters", minTitleLength, maxTitleLength)
	}
	return nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(strings.TrimSpace(content)) < minContentLength {
		return domain.NewValidationError("content", "must be at least %d characters", minContentLength)
	}
	return nil
}
