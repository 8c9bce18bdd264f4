// Package blog serves the public reading API.
package blog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scrollpress/common"
	"scrollpress/models"
	"scrollpress/store"
)

type BlogModule struct {
	store    *store.Store
	renderer *Renderer
}

func NewBlogModule(s *store.Store, renderer *Renderer) *BlogModule {
	return &BlogModule{store: s, renderer: renderer}
}

// PostView is a published post with its Markdown rendered to HTML.
type PostView struct {
	ID          uint         `json:"id"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	PublishDate time.Time    `json:"publishDate"`
	Likes       int64        `json:"likes"`
	Tags        []models.Tag `json:"tags"`
}

type PostDetail struct {
	PostView
	Comments []models.Comment `json:"comments"`
}

type commentRequest struct {
	Author      string `json:"author" binding:"required"`
	AuthorEmail string `json:"authorEmail" binding:"omitempty,email"`
	Content     string `json:"content" binding:"required"`
	ParentID    *uint  `json:"parentId"`
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/posts", b.listPosts)
		api.GET("/posts/:id", b.getPost)
		api.GET("/posts/:id/comments/:commentId/replies", b.replies)
		api.POST("/posts/:id/comments", b.createComment)
		api.POST("/posts/:id/like", b.likePost)
		api.GET("/tags", b.listTags)
	}
}

func (b *BlogModule) view(ctx context.Context, post models.Post) PostView {
	tags := post.Tags
	if tags == nil {
		tags = []models.Tag{}
	}
	return PostView{
		ID:          post.ID,
		Title:       post.Title,
		Content:     b.renderer.Render(ctx, post.Content),
		PublishDate: post.PublishDate,
		Likes:       post.Likes,
		Tags:        tags,
	}
}

func (b *BlogModule) listPosts(c *gin.Context) {
	posts, err := b.store.ListPosts(c.Request.Context(), store.PostFilter{
		Tag:           strings.TrimSpace(c.Query("tag")),
		OnlyPublished: true,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	views := make([]PostView, 0, len(posts))
	for _, post := range posts {
		views = append(views, b.view(c.Request.Context(), post))
	}
	c.JSON(http.StatusOK, views)
}

func (b *BlogModule) getPost(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}

	post, err := b.store.GetPost(c.Request.Context(), id, store.PostQuery{OnlyPublished: true, WithComments: true})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	comments := post.Comments
	if comments == nil {
		comments = []models.Comment{}
	}
	c.JSON(http.StatusOK, PostDetail{
		PostView: b.view(c.Request.Context(), *post),
		Comments: comments,
	})
}

// publishedPost 404s for drafts so they stay invisible to readers.
func (b *BlogModule) publishedPost(c *gin.Context) (uint, bool) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	if _, err := b.store.GetPost(c.Request.Context(), id, store.PostQuery{OnlyPublished: true}); err != nil {
		common.RespondError(c, err)
		return 0, false
	}
	return id, true
}

func (b *BlogModule) createComment(c *gin.Context) {
	id, ok := b.publishedPost(c)
	if !ok {
		return
	}

	var req commentRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	comment, err := b.store.CreateComment(c.Request.Context(), id, store.CommentInput{
		Author:      req.Author,
		AuthorEmail: req.AuthorEmail,
		Content:     req.Content,
		ParentID:    req.ParentID,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (b *BlogModule) replies(c *gin.Context) {
	id, ok := b.publishedPost(c)
	if !ok {
		return
	}
	commentID, err := common.ParamID(c, "commentId")
	if err != nil {
		common.RespondError(c, err)
		return
	}

	comment, err := b.store.GetComment(c.Request.Context(), commentID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if comment.PostID != id {
		common.RespondError(c, common.NotFound("comment %d not found on post %d", commentID, id))
		return
	}

	replies, err := b.store.Replies(c.Request.Context(), commentID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, replies)
}

func (b *BlogModule) likePost(c *gin.Context) {
	id, ok := b.publishedPost(c)
	if !ok {
		return
	}

	post, err := b.store.LikePost(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b.view(c.Request.Context(), *post))
}

func (b *BlogModule) listTags(c *gin.Context) {
	tags, err := b.store.ListTags(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}
