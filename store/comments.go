package store

import (
	"context"
	"fmt"
	"strings"

	"scrollpress/common"
	"scrollpress/models"
)

type CommentInput struct {
	Author      string
	AuthorEmail string
	Content     string
	ParentID    *uint
}

// threadIDsSQL collects the ids of every transitive reply below a comment.
const threadIDsSQL = `
WITH RECURSIVE thread(id) AS (
	SELECT id FROM comments WHERE parent_id = ?
	UNION ALL
	SELECT c.id FROM comments c JOIN thread t ON c.parent_id = t.id
)
SELECT id FROM thread`

// CreateComment attaches a comment to an existing post. A reply's parent must belong to the same post.
func (s *Store) CreateComment(ctx context.Context, postID uint, in CommentInput) (*models.Comment, error) {
	author := strings.TrimSpace(in.Author)
	content := strings.TrimSpace(in.Content)
	if author == "" || content == "" {
		return nil, common.Invalid("author and content are required")
	}

	comment := models.Comment{
		PostID:      postID,
		ParentID:    in.ParentID,
		Author:      author,
		AuthorEmail: strings.TrimSpace(in.AuthorEmail),
		Content:     content,
	}

	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.conn(ctx).Select("id").First(&models.Post{}, postID).Error; err != nil {
			return notFound(err, "post %d not found", postID)
		}
		if in.ParentID != nil {
			var parents []models.Comment
			if err := tx.conn(ctx).Where("id = ?", *in.ParentID).Limit(1).Find(&parents).Error; err != nil {
				return err
			}
			if len(parents) == 0 || parents[0].PostID != postID {
				return common.Invalid("parent comment %d does not belong to post %d", *in.ParentID, postID)
			}
		}
		if err := tx.conn(ctx).Create(&comment).Error; err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (s *Store) GetComment(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := s.conn(ctx).First(&comment, id).Error; err != nil {
		return nil, notFound(err, "comment %d not found", id)
	}
	return &comment, nil
}

// ListComments lists comments newest first, optionally for one post.
func (s *Store) ListComments(ctx context.Context, postID *uint) ([]models.Comment, error) {
	query := s.conn(ctx).Model(&models.Comment{})
	if postID != nil {
		query = query.Where("post_id = ?", *postID)
	}
	comments := []models.Comment{}
	if err := orderComments(query).Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// Replies returns every transitive reply of a comment, oldest first.
func (s *Store) Replies(ctx context.Context, commentID uint) ([]models.Comment, error) {
	if _, err := s.GetComment(ctx, commentID); err != nil {
		return nil, err
	}
	var ids []uint
	if err := s.conn(ctx).Raw(threadIDsSQL, commentID).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("collect replies of comment %d: %w", commentID, err)
	}
	replies := []models.Comment{}
	if len(ids) == 0 {
		return replies, nil
	}
	err := s.conn(ctx).
		Where("id IN ?", ids).
		Order("publish_date ASC, id ASC").
		Find(&replies).Error
	if err != nil {
		return nil, fmt.Errorf("load replies of comment %d: %w", commentID, err)
	}
	return replies, nil
}

// DeleteComment removes a comment together with all replies below it.
func (s *Store) DeleteComment(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.conn(ctx).Select("id").First(&models.Comment{}, id).Error; err != nil {
			return notFound(err, "comment %d not found", id)
		}
		var ids []uint
		if err := tx.conn(ctx).Raw(threadIDsSQL, id).Scan(&ids).Error; err != nil {
			return fmt.Errorf("collect replies of comment %d: %w", id, err)
		}
		ids = append(ids, id)
		if err := tx.conn(ctx).Delete(&models.Comment{}, ids).Error; err != nil {
			return fmt.Errorf("delete comment %d: %w", id, err)
		}
		return nil
	})
}
