package blog

import (
	"bytes"
	"context"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"

	"scrollpress/cache"
	"scrollpress/common"
)

// Renderer turns stored Markdown into HTML, memoised by source hash.
type Renderer struct {
	md    goldmark.Markdown
	cache cache.Store
}

func NewRenderer(store cache.Store) *Renderer {
	if store == nil {
		store = cache.Noop{}
	}
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,     // tables, strikethrough, task lists, autolinks
				extension.Linkify, // linkify raw URLs
			),
			goldmark.WithRendererOptions(
				htmlrenderer.WithUnsafe(), // posts are admin-authored and may embed HTML
			),
		),
		cache: store,
	}
}

// Render never fails: on a conversion error the source is returned as is.
func (r *Renderer) Render(ctx context.Context, source string) string {
	key := cache.Key(source)
	if html, ok := r.cache.Get(ctx, key); ok {
		return html
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		common.Warnw("markdown_render_failed", "error", err)
		return source
	}
	html := buf.String()
	if err := r.cache.Set(ctx, key, html); err != nil {
		common.Warnw("render_cache_set_failed", "key", key, "error", err)
	}
	return html
}
