package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dfryer1193/goblog/api"
	"github.com/dfryer1193/goblog/blog/application"
	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/dfryer1193/goblog/blog/persistence"
	"github.com/dfryer1193/goblog/internal/middleware"
	"github.com/dfryer1193/goblog/shared/cache"
	"github.com/dfryer1193/goblog/shared/dynamo"
	"github.com/dfryer1193/goblog/shared/dynamo/dynamotest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

type testServer struct {
	router *gin.Engine
	store  *dynamotest.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := dynamotest.NewStore(2)
	store.AddTable("posts", dynamo.PostsHashKey, dynamo.PostsRangeKey)
	store.AddTable("settings", dynamo.SettingsHashKey, "")

	postRepo := persistence.NewPostRepository(store, "posts")
	settingsRepo := persistence.NewSettingsRepository(store, "settings")
	queries := application.NewPostQueryService(postRepo, cache.NewLRU[[]*domain.Post](4, time.Hour), settingsRepo)

	router := gin.New()
	router.Use(gin.CustomRecovery(middleware.HandlePanics()))
	NewApi(router, Deps{
		Posts:    application.NewPostService(postRepo, queries),
		Queries:  queries,
		Settings: application.NewSettingsService(settingsRepo),
		Auth:     middleware.NewStaticTokenAuthenticator(testToken, "admin"),
		SiteURL:  "https://blog.example.com/",
	})

	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, authenticated bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// decode unmarshals the envelope and its data into out.
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) api.Response {
	t.Helper()

	var env struct {
		api.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env.Response
}

func (s *testServer) createPost(t *testing.T, title string, published bool) api.Post {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/admin/posts", api.CreatePostRequest{
		Title:     title,
		Content:   "Content of " + title + " that is long enough.",
		Published: published,
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var post api.Post
	decode(t, w, &post)
	return post
}

func TestCreatePost(t *testing.T) {
	s := newTestServer(t)

	post := s.createPost(t, "Hello World", true)

	assert.Equal(t, "hello-world", post.Slug)
	assert.Equal(t, "admin", post.Author)
	assert.Equal(t, post.CreatedAt, post.UpdatedAt)
	assert.Zero(t, post.Views)
}

func TestCreatePost_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/admin/posts", api.CreatePostRequest{
		Title:   "Hello World",
		Content: "Content that is long enough.",
	}, false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, s.store.Items("posts"))
}

func TestCreatePost_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing title", body: map[string]any{"content": "Content that is long enough."}},
		{name: "short title", body: api.CreatePostRequest{Title: "Hi", Content: "Content that is long enough."}},
		{name: "short content", body: api.CreatePostRequest{Title: "Hello World", Content: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/admin/posts", tt.body, true)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode(t, w, nil)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
		})
	}
	assert.Empty(t, s.store.Items("posts"))
}

func TestListPosts_PublicIsCacheable(t *testing.T) {
	s := newTestServer(t)
	for _, title := range []string{"First Post", "Second Post", "Third Post"} {
		s.createPost(t, title, true)
	}
	s.createPost(t, "Draft Post", false)

	w := s.do(t, http.MethodGet, "/api/posts?page=1&limit=2", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cacheControlPublic, w.Header().Get("Cache-Control"))

	var list api.PostList
	resp := decode(t, w, &list)
	assert.True(t, resp.Success)
	assert.Len(t, list.Posts, 2)
	assert.Equal(t, api.Pagination{CurrentPage: 1, TotalPages: 2, TotalPosts: 3}, list.Pagination)
	for _, p := range list.Posts {
		assert.True(t, p.Published)
	}
}

func TestListPosts_MalformedPagingFallsBack(t *testing.T) {
	s := newTestServer(t)
	s.createPost(t, "Only Post", true)

	w := s.do(t, http.MethodGet, "/api/posts?page=abc&limit=-3", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var list api.PostList
	decode(t, w, &list)
	assert.Equal(t, 1, list.Pagination.CurrentPage)
	assert.Len(t, list.Posts, 1)
}

func TestListPosts_Search(t *testing.T) {
	s := newTestServer(t)
	s.createPost(t, "Learning Go", true)
	s.createPost(t, "Baking Bread", true)

	w := s.do(t, http.MethodGet, "/api/posts?search=GO", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var list api.PostList
	decode(t, w, &list)
	require.Len(t, list.Posts, 1)
	assert.Equal(t, "Learning Go", list.Posts[0].Title)
}

func TestListPosts_BlankSearchIsPlainListing(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 8; i++ {
		s.createPost(t, "Post number "+string(rune('A'+i)), true)
	}

	w := s.do(t, http.MethodGet, "/api/posts?search=%20%20", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var list api.PostList
	decode(t, w, &list)
	assert.Len(t, list.Posts, domain.DefaultSettings().PostsPerPage)
	assert.Equal(t, api.Pagination{CurrentPage: 1, TotalPages: 2, TotalPosts: 8}, list.Pagination)
}

func TestListPosts_PageSizeFollowsSettings(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 5; i++ {
		s.createPost(t, "Post number "+string(rune('A'+i)), true)
	}

	w := s.do(t, http.MethodPut, "/api/admin/settings", api.Settings{SiteTitle: "Mine", PrimaryColor: "#abcdef", PostsPerPage: 2}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list api.PostList
	decode(t, s.do(t, http.MethodGet, "/api/posts", nil, false), &list)
	assert.Len(t, list.Posts, 2)
	assert.Equal(t, 3, list.Pagination.TotalPages)

	decode(t, s.do(t, http.MethodGet, "/api/posts?limit=4", nil, false), &list)
	assert.Len(t, list.Posts, 4)
}

func TestListPosts_AdminStatus(t *testing.T) {
	s := newTestServer(t)
	s.createPost(t, "Published Post", true)
	s.createPost(t, "Draft Post", false)

	w := s.do(t, http.MethodGet, "/api/posts?status=draft", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cacheControlNoStore, w.Header().Get("Cache-Control"))

	var list api.PostList
	decode(t, w, &list)
	require.Len(t, list.Posts, 1)
	assert.Equal(t, "Draft Post", list.Posts[0].Title)

	w = s.do(t, http.MethodGet, "/api/admin/posts", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Equal(t, 2, list.Pagination.TotalPosts)

	// Anonymous callers cannot widen the listing with a status.
	w = s.do(t, http.MethodGet, "/api/posts?status=draft", nil, false)
	decode(t, w, &list)
	assert.Equal(t, 1, list.Pagination.TotalPosts)
	assert.True(t, list.Posts[0].Published)
}

func TestGetPost_DraftRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	draft := s.createPost(t, "Hidden Draft", false)

	w := s.do(t, http.MethodGet, "/api/posts/"+draft.ID, nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/posts/"+draft.ID, nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var post api.Post
	decode(t, w, &post)
	assert.Equal(t, draft.ID, post.ID)
	assert.Equal(t, cacheControlNoStore, w.Header().Get("Cache-Control"))
}

func TestGetPostBySlug_CountsViews(t *testing.T) {
	s := newTestServer(t)
	s.createPost(t, "Read Me", true)

	for want := 1; want <= 2; want++ {
		w := s.do(t, http.MethodGet, "/api/posts/slug/read-me", nil, false)
		require.Equal(t, http.StatusOK, w.Code)
		var post api.Post
		decode(t, w, &post)
		assert.Equal(t, want, post.Views)
	}

	w := s.do(t, http.MethodGet, "/api/posts/slug/no-such-post", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPostBySlug_IncrementFailureIsInvisible(t *testing.T) {
	s := newTestServer(t)
	s.createPost(t, "Sturdy Post", true)
	s.store.Fail(dynamotest.OpUpdateItem, errors.New("throttled"))

	w := s.do(t, http.MethodGet, "/api/posts/slug/sturdy-post", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var post api.Post
	decode(t, w, &post)
	assert.Equal(t, "Sturdy Post", post.Title)
}

func TestIncrementView_AlwaysSucceeds(t *testing.T) {
	s := newTestServer(t)
	post := s.createPost(t, "Counted Post", true)

	w := s.do(t, http.MethodPost, "/api/posts/"+post.ID+"/views", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w, nil).Success)

	w = s.do(t, http.MethodPost, "/api/posts/missing/views", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w, nil).Success)

	w = s.do(t, http.MethodGet, "/api/posts/"+post.ID, nil, false)
	var got api.Post
	decode(t, w, &got)
	assert.Equal(t, 1, got.Views)
}

func TestUpdatePost(t *testing.T) {
	s := newTestServer(t)
	post := s.createPost(t, "Before Title", false)

	title := "After Title"
	published := true
	w := s.do(t, http.MethodPut, "/api/admin/posts/"+post.ID, api.UpdatePostRequest{
		Title:     &title,
		Published: &published,
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated api.Post
	decode(t, w, &updated)
	assert.Equal(t, "after-title", updated.Slug)
	assert.True(t, updated.Published)
	assert.Equal(t, post.CreatedAt, updated.CreatedAt)

	w = s.do(t, http.MethodPut, "/api/admin/posts/missing", api.UpdatePostRequest{Title: &title}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/posts/"+post.ID, map[string]any{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePost_InvalidatesPublicList(t *testing.T) {
	s := newTestServer(t)
	post := s.createPost(t, "Soon Public", false)

	var list api.PostList
	decode(t, s.do(t, http.MethodGet, "/api/posts", nil, false), &list)
	require.Equal(t, 0, list.Pagination.TotalPosts)

	published := true
	w := s.do(t, http.MethodPut, "/api/admin/posts/"+post.ID, api.UpdatePostRequest{Published: &published}, true)
	require.Equal(t, http.StatusOK, w.Code)

	decode(t, s.do(t, http.MethodGet, "/api/posts", nil, false), &list)
	assert.Equal(t, 1, list.Pagination.TotalPosts)
}

func TestDeletePost(t *testing.T) {
	s := newTestServer(t)
	post := s.createPost(t, "Going Away", true)

	w := s.do(t, http.MethodDelete, "/api/admin/posts/"+post.ID, nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/posts/"+post.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/admin/posts/"+post.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStoreFailureHidesDetail(t *testing.T) {
	s := newTestServer(t)
	s.store.Fail(dynamotest.OpScan, errors.New("arn:aws:dynamodb:secret-table"))

	w := s.do(t, http.MethodGet, "/api/posts", nil, false)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-table")
	assert.Equal(t, cacheControlNoStore, w.Header().Get("Cache-Control"))
}

func TestSettings(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/settings", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var settings api.Settings
	decode(t, w, &settings)
	assert.Equal(t, domain.DefaultSettings().SiteTitle, settings.SiteTitle)

	w = s.do(t, http.MethodPut, "/api/admin/settings", api.Settings{SiteTitle: "Mine", PrimaryColor: "#abcdef"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/settings", api.Settings{SiteTitle: "Mine", PrimaryColor: "not-a-color"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/settings", api.Settings{SiteTitle: "Mine", PrimaryColor: "#abcdef", PostsPerPage: 9}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	decode(t, s.do(t, http.MethodGet, "/api/settings", nil, false), &settings)
	assert.Equal(t, "Mine", settings.SiteTitle)
	assert.Equal(t, 9, settings.PostsPerPage)
	assert.NotEmpty(t, settings.UpdatedAt)
}

func TestSitemap(t *testing.T) {
	s := newTestServer(t)
	s.createPost(t, "Mapped Post", true)
	s.createPost(t, "Unmapped Draft", false)

	w := s.do(t, http.MethodGet, "/sitemap.xml", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/xml"))
	assert.Contains(t, body, "<loc>https://blog.example.com/</loc>")
	assert.Contains(t, body, "<loc>https://blog.example.com/posts/mapped-post</loc>")
	assert.NotContains(t, body, "unmapped-draft")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createPost(t, "Metered Post", true)
	s.do(t, http.MethodGet, "/api/posts", nil, false)

	w := s.do(t, http.MethodGet, "/metrics", nil, false)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goblog_")
}
