package rest

import (
	"net/http"
	"strings"

	"github.com/dfryer1193/goblog/api"
	"github.com/dfryer1193/goblog/blog/application"
	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/dfryer1193/goblog/internal/middleware"
	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	posts   *application.PostService
	queries *application.PostQueryService
}

func NewPostHandler(posts *application.PostService, queries *application.PostQueryService) *PostHandler {
	return &PostHandler{
		posts:   posts,
		queries: queries,
	}
}

// List serves the public listing and search. An authenticated caller that
// passes a status gets the admin listing instead.
func (h *PostHandler) List(c *gin.Context) {
	page := queryInt(c, "page")
	limit := queryInt(c, "limit")
	search := strings.TrimSpace(c.Query("search"))

	_, authenticated := middleware.PrincipalFrom(c)
	if status, ok := c.GetQuery("status"); ok && authenticated {
		h.listAdmin(c, domain.ParseStatus(status), search, page, limit)
		return
	}

	var (
		result *application.PostPage
		err    error
	)
	if search != "" {
		result, err = h.queries.SearchPublic(c.Request.Context(), search, page, limit)
	} else {
		result, err = h.queries.ListPublic(c.Request.Context(), page, limit)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toPostList(result), result.Cacheable && !authenticated)
}

func (h *PostHandler) ListAdmin(c *gin.Context) {
	h.listAdmin(c, domain.ParseStatus(c.Query("status")), strings.TrimSpace(c.Query("search")), queryInt(c, "page"), queryInt(c, "limit"))
}

func (h *PostHandler) listAdmin(c *gin.Context, status domain.Status, search string, page, limit int) {
	result, err := h.queries.ListAdmin(c.Request.Context(), application.AdminListOptions{
		Status:     status,
		SearchTerm: search,
		Page:       page,
		PageSize:   limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toPostList(result), false)
}

func (h *PostHandler) Get(c *gin.Context) {
	_, authenticated := middleware.PrincipalFrom(c)

	post, err := h.posts.GetByID(c.Request.Context(), c.Param("id"), authenticated)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toAPIPost(post), post.Published && !authenticated)
}

func (h *PostHandler) GetBySlug(c *gin.Context) {
	_, authenticated := middleware.PrincipalFrom(c)

	post, err := h.posts.GetBySlug(c.Request.Context(), c.Param("slug"), authenticated)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toAPIPost(post), false)
}

// IncrementView always reports success; failures are only logged.
func (h *PostHandler) IncrementView(c *gin.Context) {
	h.posts.IncrementView(c.Request.Context(), c.Param("id"))
	respondOK(c, http.StatusOK, nil, false)
}

func (h *PostHandler) Create(c *gin.Context) {
	var req api.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("", "invalid request body: %v", err))
		return
	}

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		respondError(c, domain.ErrUnauthorized)
		return
	}

	post, err := h.posts.Create(c.Request.Context(), principal.ID, application.CreatePostInput{
		Title:     req.Title,
		Content:   req.Content,
		Published: req.Published,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, toAPIPost(post), false)
}

func (h *PostHandler) Update(c *gin.Context) {
	var req api.UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("", "invalid request body: %v", err))
		return
	}

	post, err := h.posts.Update(c.Request.Context(), c.Param("id"), application.UpdatePostInput{
		Title:     req.Title,
		Content:   req.Content,
		Published: req.Published,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, toAPIPost(post), false)
}

func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.posts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, nil, false)
}

func toAPIPost(p *domain.Post) api.Post {
	return api.Post{
		ID:        p.ID,
		CreatedAt: p.CreatedAt.UTC().Format(domain.TimestampLayout),
		UpdatedAt: p.UpdatedAt.UTC().Format(domain.TimestampLayout),
		Title:     p.Title,
		Content:   p.Content,
		Slug:      p.Slug,
		Excerpt:   p.Excerpt,
		Author:    p.Author,
		Published: p.Published,
		Views:     p.Views,
	}
}

func toPostList(page *application.PostPage) api.PostList {
	posts := make([]api.Post, 0, len(page.Posts))
	for _, p := range page.Posts {
		posts = append(posts, toAPIPost(p))
	}

	return api.PostList{
		Posts: posts,
		Pagination: api.Pagination{
			CurrentPage: page.Pagination.CurrentPage,
			TotalPages:  page.Pagination.TotalPages,
			TotalPosts:  page.Pagination.TotalPosts,
		},
	}
}
