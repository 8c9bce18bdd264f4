// Package admin serves the content management API. It carries no authentication.
package admin

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scrollpress/common"
	"scrollpress/models"
	"scrollpress/store"
)

type AdminModule struct {
	store    *store.Store
	uploader *Uploader
	upload   common.UploadConfig
}

func NewAdminModule(s *store.Store, upload common.UploadConfig) *AdminModule {
	return &AdminModule{
		store:    s,
		uploader: NewUploader(upload),
		upload:   upload,
	}
}

// postRequest carries tags as the comma separated string typed in the editor.
// Omitting tags leaves the post's tags unchanged; "" clears them.
type postRequest struct {
	Title       string     `json:"title" binding:"required"`
	Content     string     `json:"content" binding:"required"`
	Tags        *string    `json:"tags"`
	Status      string     `json:"status"` // checked by the store, ignoring case
	PublishDate *time.Time `json:"publishDate"`
}

func (r postRequest) input() store.PostInput {
	return store.PostInput{
		Title:       r.Title,
		Content:     r.Content,
		Status:      r.Status,
		PublishDate: r.PublishDate,
		Tags:        r.Tags,
	}
}

type tagRequest struct {
	Name string `json:"name" binding:"required"`
}

type rewriteLinksRequest struct {
	From string  `json:"from"`
	To   *string `json:"to"`
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	adminGroup := router.Group("/api/admin")
	{
		adminGroup.GET("/posts", a.listPosts)
		adminGroup.POST("/posts", a.createPost)
		adminGroup.GET("/posts/:id", a.getPost)
		adminGroup.PUT("/posts/:id", a.updatePost)
		adminGroup.DELETE("/posts/:id", a.deletePost)

		adminGroup.GET("/tags", a.listTags)
		adminGroup.POST("/tags", a.createTag)
		adminGroup.GET("/tags/:id", a.getTag)
		adminGroup.PUT("/tags/:id", a.updateTag)
		adminGroup.DELETE("/tags/:id", a.deleteTag)

		adminGroup.GET("/comments", a.listComments)
		adminGroup.DELETE("/comments/:id", a.deleteComment)

		adminGroup.POST("/upload", a.uploadImage)
		adminGroup.POST("/maintenance/rewrite-links", a.rewriteLinks)
	}
}

// withTags keeps "tags" an array in responses.
func withTags(post *models.Post) *models.Post {
	if post.Tags == nil {
		post.Tags = []models.Tag{}
	}
	return post
}

func (a *AdminModule) listPosts(c *gin.Context) {
	posts, err := a.store.ListPosts(c.Request.Context(), store.PostFilter{Tag: strings.TrimSpace(c.Query("tag"))})
	if err != nil {
		common.RespondError(c, err)
		return
	}
	for i := range posts {
		withTags(&posts[i])
	}
	c.JSON(http.StatusOK, posts)
}

func (a *AdminModule) getPost(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	post, err := a.store.GetPost(c.Request.Context(), id, store.PostQuery{})
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, withTags(post))
}

func (a *AdminModule) createPost(c *gin.Context) {
	var req postRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	post, err := a.store.CreatePost(c.Request.Context(), req.input())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RequestLog(c).Infow("post_created", "post_id", post.ID, "tags", len(post.Tags))
	c.JSON(http.StatusCreated, withTags(post))
}

func (a *AdminModule) updatePost(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	var req postRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	post, err := a.store.UpdatePost(c.Request.Context(), id, req.input())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RequestLog(c).Infow("post_updated", "post_id", post.ID, "tags_changed", req.Tags != nil)
	c.JSON(http.StatusOK, withTags(post))
}

func (a *AdminModule) deletePost(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if err := a.store.DeletePost(c.Request.Context(), id); err != nil {
		common.RespondError(c, err)
		return
	}
	common.RequestLog(c).Infow("post_deleted", "post_id", id)
	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

func (a *AdminModule) listTags(c *gin.Context) {
	tags, err := a.store.ListTags(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (a *AdminModule) getTag(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	tag, err := a.store.GetTag(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (a *AdminModule) createTag(c *gin.Context) {
	var req tagRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}
	tag, created, err := a.store.CreateTag(c.Request.Context(), req.Name)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, tag)
}

// updateTag renames; a name already owned by another tag merges into it.
func (a *AdminModule) updateTag(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	var req tagRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	tag, merged, err := a.store.RenameTag(c.Request.Context(), id, req.Name)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if merged {
		common.RequestLog(c).Infow("tag_merged", "from", id, "into", tag.ID)
	}
	c.JSON(http.StatusOK, gin.H{"tag": tag, "merged": merged})
}

func (a *AdminModule) deleteTag(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if err := a.store.DeleteTag(c.Request.Context(), id); err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "tag deleted"})
}

func (a *AdminModule) listComments(c *gin.Context) {
	var postID *uint
	if raw := strings.TrimSpace(c.Query("post_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			common.RespondError(c, common.Invalid("invalid post_id %q", raw))
			return
		}
		v := uint(id)
		postID = &v
	}

	comments, err := a.store.ListComments(c.Request.Context(), postID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (a *AdminModule) deleteComment(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if err := a.store.DeleteComment(c.Request.Context(), id); err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
}

func (a *AdminModule) uploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		common.RespondError(c, common.Invalid("multipart field \"image\" is required"))
		return
	}
	url, err := a.uploader.Save(file)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// rewriteLinks points image links in post bodies from the old site's upload URL at ours.
func (a *AdminModule) rewriteLinks(c *gin.Context) {
	var req rewriteLinksRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			common.RespondError(c, common.BindingError(err))
			return
		}
	}

	from := strings.TrimSpace(req.From)
	if from == "" {
		from = a.upload.LegacyBaseURL
	}
	to := a.uploader.urlPrefix()
	if req.To != nil {
		to = *req.To
	}

	updated, err := a.store.RewriteContentLinks(c.Request.Context(), from, to)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RequestLog(c).Infow("content_links_rewritten", "from", from, "to", to, "updated", updated)
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
