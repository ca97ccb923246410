package rest

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/dfryer1193/goblog/blog/application"
	"github.com/gin-gonic/gin"
)

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type SitemapHandler struct {
	posts   *application.PostService
	siteURL string
}

func NewSitemapHandler(posts *application.PostService, siteURL string) *SitemapHandler {
	return &SitemapHandler{
		posts:   posts,
		siteURL: strings.TrimRight(siteURL, "/"),
	}
}

// Get renders the home page and every published post as a sitemap urlset.
func (h *SitemapHandler) Get(c *gin.Context) {
	entries, err := h.posts.Sitemap(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	set := urlSet{
		Xmlns: sitemapNamespace,
		URLs: []sitemapURL{{
			Loc:        h.siteURL + "/",
			ChangeFreq: "daily",
			Priority:   "1.0",
		}},
	}
	for _, e := range entries {
		u := sitemapURL{
			Loc:        h.siteURL + "/posts/" + e.Slug,
			ChangeFreq: "weekly",
			Priority:   "0.8",
		}
		if !e.UpdatedAt.IsZero() {
			u.LastMod = e.UpdatedAt.UTC().Format(time.DateOnly)
		}
		set.URLs = append(set.URLs, u)
	}

	body, err := xml.Marshal(set)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", cacheControlPublic)
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), body...))
}
