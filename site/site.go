// Package site serves crawler-facing documents for the public blog.
package site

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scrollpress/common"
	"scrollpress/store"
)

type SiteModule struct {
	store   *store.Store
	baseURL string
}

func NewSiteModule(s *store.Store, publicURL string) *SiteModule {
	baseURL := strings.TrimSuffix(strings.TrimSpace(publicURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost"
	}
	return &SiteModule{store: s, baseURL: baseURL}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/sitemap.xml", s.sitemap)
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

func (s *SiteModule) sitemap(c *gin.Context) {
	ctx := c.Request.Context()
	posts, err := s.store.ListPosts(ctx, store.PostFilter{OnlyPublished: true})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	set := urlSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	set.URLs = append(set.URLs, sitemapURL{
		Loc:        s.baseURL + "/",
		ChangeFreq: "daily",
		Priority:   "1.0",
	})

	for _, post := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.baseURL + "/posts/" + strconv.FormatUint(uint64(post.ID), 10),
			LastMod:    post.UpdatedAt.UTC().Format(time.RFC3339),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	// only tags reachable from a published post get a page
	seen := make(map[uint]struct{})
	for _, post := range posts {
		for _, tag := range post.Tags {
			if _, ok := seen[tag.ID]; ok {
				continue
			}
			seen[tag.ID] = struct{}{}
			set.URLs = append(set.URLs, sitemapURL{
				Loc:        s.baseURL + "/tags/" + url.PathEscape(tag.Name),
				ChangeFreq: "weekly",
				Priority:   "0.4",
			})
		}
	}

	body, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		common.RespondError(c, common.Internal("render sitemap", err))
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), append(body, '\n')...))
}
