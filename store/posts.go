package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scrollpress/common"
	"scrollpress/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostFilter struct {
	Tag           string // tag name, matched ignoring case
	OnlyPublished bool
}

type PostQuery struct {
	OnlyPublished bool
	WithComments  bool
}

// PostInput is the create/update payload. Tags nil leaves associations alone on update.
type PostInput struct {
	Title       string
	Content     string
	Status      string
	PublishDate *time.Time
	Tags        *string
}

func (in *PostInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return common.Invalid("title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return common.Invalid("content is required")
	}
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = models.StatusPublish
	}
	if !models.ValidStatus(in.Status) {
		return common.Invalid("status must be %q or %q", models.StatusPublish, models.StatusDraft)
	}
	return nil
}

func orderTags(db *gorm.DB) *gorm.DB {
	return db.Order("name ASC")
}

func orderComments(db *gorm.DB) *gorm.DB {
	return db.Order("publish_date DESC, id DESC")
}

// ListPosts returns posts newest publish date first, with tags.
func (s *Store) ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error) {
	query := s.conn(ctx).Model(&models.Post{}).Preload("Tags", orderTags)
	if filter.OnlyPublished {
		query = query.Where("posts.status = ?", models.StatusPublish)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		tagged := s.conn(ctx).
			Table("post_tags").
			Select("post_tags.post_id").
			Joins("JOIN tags ON tags.id = post_tags.tag_id").
			Where("tags.name_key = ?", models.TagKey(tag))
		query = query.Where("posts.id IN (?)", tagged)
	}

	posts := []models.Post{}
	if err := query.Order("posts.publish_date DESC, posts.id DESC").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Store) GetPost(ctx context.Context, id uint, q PostQuery) (*models.Post, error) {
	query := s.conn(ctx).Preload("Tags", orderTags)
	if q.WithComments {
		query = query.Preload("Comments", orderComments)
	}
	if q.OnlyPublished {
		query = query.Where("status = ?", models.StatusPublish)
	}

	var post models.Post
	if err := query.First(&post, id).Error; err != nil {
		return nil, notFound(err, "post %d not found", id)
	}
	return &post, nil
}

// CreatePost writes the post and its tags in one transaction.
func (s *Store) CreatePost(ctx context.Context, in PostInput) (*models.Post, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	post := models.Post{
		Title:   in.Title,
		Content: in.Content,
		Status:  in.Status,
	}
	if in.PublishDate != nil {
		post.PublishDate = *in.PublishDate
	}

	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.conn(ctx).Omit(clause.Associations).Create(&post).Error; err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		raw := ""
		if in.Tags != nil {
			raw = *in.Tags
		}
		tags, err := tx.replacePostTags(ctx, post.ID, ParseTagNames(raw))
		if err != nil {
			return err
		}
		post.Tags = tags
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Store) UpdatePost(ctx context.Context, id uint, in PostInput) (*models.Post, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var post models.Post
	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.conn(ctx).First(&post, id).Error; err != nil {
			return notFound(err, "post %d not found", id)
		}
		post.Title = in.Title
		post.Content = in.Content
		post.Status = in.Status
		if in.PublishDate != nil {
			post.PublishDate = *in.PublishDate
		}
		if err := tx.conn(ctx).Omit(clause.Associations).Save(&post).Error; err != nil {
			return fmt.Errorf("update post %d: %w", id, err)
		}

		var (
			tags []models.Tag
			err  error
		)
		if in.Tags == nil {
			tags, err = tx.postTags(ctx, id)
		} else {
			tags, err = tx.replacePostTags(ctx, id, ParseTagNames(*in.Tags))
		}
		if err != nil {
			return err
		}
		post.Tags = tags
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes the post with its comments and tag associations. Tags survive.
func (s *Store) DeletePost(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.conn(ctx).Select("id").First(&models.Post{}, id).Error; err != nil {
			return notFound(err, "post %d not found", id)
		}
		if err := tx.conn(ctx).Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments of post %d: %w", id, err)
		}
		if err := tx.conn(ctx).Where("post_id = ?", id).Delete(&models.PostTag{}).Error; err != nil {
			return fmt.Errorf("delete tag associations of post %d: %w", id, err)
		}
		if err := tx.conn(ctx).Delete(&models.Post{}, id).Error; err != nil {
			return fmt.Errorf("delete post %d: %w", id, err)
		}
		return nil
	})
}

// LikePost adds one like with a single UPDATE so sequential likes are never lost.
func (s *Store) LikePost(ctx context.Context, id uint) (*models.Post, error) {
	result := s.conn(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("likes", gorm.Expr("likes + ?", 1))
	if result.Error != nil {
		return nil, fmt.Errorf("like post %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, common.NotFound("post %d not found", id)
	}
	return s.GetPost(ctx, id, PostQuery{})
}

// RewriteContentLinks replaces every occurrence of from with to in post content and
// reports how many posts changed.
func (s *Store) RewriteContentLinks(ctx context.Context, from, to string) (int64, error) {
	if strings.TrimSpace(from) == "" {
		return 0, common.Invalid("legacy base url is required")
	}

	var updated int64
	err := s.Transaction(ctx, func(tx *Store) error {
		var posts []models.Post
		if err := tx.conn(ctx).Where("content LIKE ?", "%"+from+"%").Find(&posts).Error; err != nil {
			return err
		}
		for _, post := range posts {
			content := strings.ReplaceAll(post.Content, from, to)
			if content == post.Content {
				continue
			}
			err := tx.conn(ctx).Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumn("content", content).Error
			if err != nil {
				return fmt.Errorf("rewrite links in post %d: %w", post.ID, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
