package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dfryer1193/goblog/api"
	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	cacheControlPublic  = "public, s-maxage=60, stale-while-revalidate=300"
	cacheControlNoStore = "no-store"
)

// respondError maps domain errors onto status codes. Store failures never
// leak their detail to the caller.
func respondError(c *gin.Context, err error) {
	c.Header("Cache-Control", cacheControlNoStore)

	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, api.Fail(validationErr.Error()))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, api.Fail("Not found"))
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, api.Fail("Authentication required"))
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, api.Fail("Internal server error"))
	}
}

func respondOK(c *gin.Context, status int, data any, cacheable bool) {
	if cacheable {
		c.Header("Cache-Control", cacheControlPublic)
	} else {
		c.Header("Cache-Control", cacheControlNoStore)
	}
	c.JSON(status, api.OK(data))
}

// queryInt parses an optional positive integer query parameter. Malformed or
// non-positive values yield 0 so the default applies.
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return 0
	}
	return v
}
