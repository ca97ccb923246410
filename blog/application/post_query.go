package application

import (
	"context"
	"slices"

	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/dfryer1193/goblog/internal/metrics"
	"github.com/dfryer1193/goblog/shared/cache"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPublicPageSize = 6
	DefaultAdminPageSize  = 6
	DefaultSearchPageSize = 10

	publishedPostsCacheKey = "posts:published"
)

// Pagination describes the window a PostPage was cut from.
type Pagination struct {
	CurrentPage int
	TotalPages  int
	TotalPosts  int
}

// PostPage is one page of posts, newest first.
// Cacheable is set for anonymous reads of published content only.
type PostPage struct {
	Posts      []*domain.Post
	Pagination Pagination
	Cacheable  bool
}

// AdminListOptions selects posts for the admin listing.
type AdminListOptions struct {
	Status     domain.Status
	SearchTerm string
	Page       int
	PageSize   int
}

// PostQueryService turns full repository listings into stable pages.
// The repository cannot sort or offset, so every page is cut in memory
// from the complete candidate set.
type PostQueryService struct {
	repo     domain.PostRepository
	cache    cache.Cache[[]*domain.Post]
	settings domain.SettingsRepository
}

// NewPostQueryService creates a PostQueryService. postCache holds the full
// published list and may be nil to disable caching. settings supplies the
// public page size and may be nil to always use DefaultPublicPageSize.
func NewPostQueryService(repo domain.PostRepository, postCache cache.Cache[[]*domain.Post], settings domain.SettingsRepository) *PostQueryService {
	return &PostQueryService{
		repo:     repo,
		cache:    postCache,
		settings: settings,
	}
}

// ListPublic returns a page of published posts. Without an explicit page
// size the site's posts-per-page setting applies.
func (s *PostQueryService) ListPublic(ctx context.Context, page, pageSize int) (*PostPage, error) {
	posts, err := s.publishedPosts(ctx)
	if err != nil {
		return nil, err
	}

	if pageSize < 1 {
		pageSize = s.publicPageSize(ctx)
	}
	result := paginate(posts, page, pageSize, DefaultPublicPageSize)
	result.Cacheable = true
	return result, nil
}

// SearchPublic returns a page of published posts matching term.
func (s *PostQueryService) SearchPublic(ctx context.Context, term string, page, pageSize int) (*PostPage, error) {
	posts, err := s.repo.Search(ctx, term)
	if err != nil {
		return nil, err
	}

	result := paginate(posts, page, pageSize, DefaultSearchPageSize)
	result.Cacheable = true
	return result, nil
}

// ListAdmin returns a page of posts in any state. Admin pages are never cacheable.
func (s *PostQueryService) ListAdmin(ctx context.Context, opts AdminListOptions) (*PostPage, error) {
	status := opts.Status
	if status == "" {
		status = domain.StatusAll
	}

	posts, err := s.repo.ListAll(ctx, domain.PostFilter{
		Status:     status,
		SearchTerm: opts.SearchTerm,
	})
	if err != nil {
		return nil, err
	}

	return paginate(posts, opts.Page, opts.PageSize, DefaultAdminPageSize), nil
}

// Invalidate drops the cached published list. Called after every mutation.
func (s *PostQueryService) Invalidate() {
	if s.cache != nil {
		s.cache.Invalidate(publishedPostsCacheKey)
	}
}

func (s *PostQueryService) publicPageSize(ctx context.Context) int {
	if s.settings == nil {
		return DefaultPublicPageSize
	}

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using default page size")
		return DefaultPublicPageSize
	}
	if settings.PostsPerPage < 1 {
		return DefaultPublicPageSize
	}
	return settings.PostsPerPage
}

func (s *PostQueryService) publishedPosts(ctx context.Context) ([]*domain.Post, error) {
	if s.cache != nil {
		if posts, ok := s.cache.Get(publishedPostsCacheKey); ok {
			metrics.PostCacheLookups.WithLabelValues("hit").Inc()
			return posts, nil
		}
		metrics.PostCacheLookups.WithLabelValues("miss").Inc()
	}

	posts, err := s.repo.ListPublished(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(publishedPostsCacheKey, posts)
	}
	return posts, nil
}

// paginate sorts a copy of posts newest first, keeping scan order for equal
// timestamps, and cuts the requested 1-based page. Pages past the end are empty.
func paginate(posts []*domain.Post, page, pageSize, defaultPageSize int) *PostPage {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	sorted := slices.Clone(posts)
	slices.SortStableFunc(sorted, func(a, b *domain.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(sorted)
	totalPages := (total + pageSize - 1) / pageSize

	window := make([]*domain.Post, 0, pageSize)
	if start := (page - 1) * pageSize; start < total {
		end := min(start+pageSize, total)
		window = append(window, sorted[start:end]...)
	}

	return &PostPage{
		Posts: window,
		Pagination: Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalPosts:  total,
		},
	}
}
