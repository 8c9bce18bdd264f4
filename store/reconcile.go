package store

import (
	"context"
	"fmt"
	"strings"

	"scrollpress/models"

	"gorm.io/gorm/clause"
)

// findOrCreateAttempts bounds the insert/find loop when another request keeps racing us on the same name.
const findOrCreateAttempts = 3

// ParseTagNames splits a comma separated tag string. Tokens are trimmed, empty ones dropped, and
// duplicates collapsed ignoring case; the first spelling seen is kept, in input order.
func ParseTagNames(raw string) []string {
	names := []string{}
	seen := make(map[string]struct{})
	for _, token := range strings.Split(raw, ",") {
		name := strings.TrimSpace(token)
		if name == "" {
			continue
		}
		key := models.TagKey(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ReconcileTags makes the post's tag set exactly the tags named in raw, creating missing tags.
// A nil raw means "no change" and returns the current tags; an empty string clears them.
// Tags are never deleted here.
func (s *Store) ReconcileTags(ctx context.Context, postID uint, raw *string) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.conn(ctx).Select("id").First(&models.Post{}, postID).Error; err != nil {
			return notFound(err, "post %d not found", postID)
		}
		var err error
		if raw == nil {
			tags, err = tx.postTags(ctx, postID)
			return err
		}
		tags, err = tx.replacePostTags(ctx, postID, ParseTagNames(*raw))
		return err
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// replacePostTags must run inside a transaction.
func (s *Store) replacePostTags(ctx context.Context, postID uint, names []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		tag, err := s.findOrCreateTag(ctx, name)
		if err != nil {
			return nil, err
		}
		tags = append(tags, *tag)
	}

	if err := s.conn(ctx).Where("post_id = ?", postID).Delete(&models.PostTag{}).Error; err != nil {
		return nil, fmt.Errorf("clear tags of post %d: %w", postID, err)
	}
	if len(tags) == 0 {
		return tags, nil
	}

	rows := make([]models.PostTag, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, models.PostTag{PostID: postID, TagID: tag.ID})
	}
	if err := s.conn(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("associate tags with post %d: %w", postID, err)
	}
	return tags, nil
}

// findOrCreateTag looks the name up ignoring case and inserts it when missing. The insert
// skips on a unique-key conflict, so a concurrent creator of the same name just makes the
// next lookup succeed.
func (s *Store) findOrCreateTag(ctx context.Context, name string) (*models.Tag, error) {
	key := models.TagKey(name)
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		var existing []models.Tag
		if err := s.conn(ctx).Where("name_key = ?", key).Limit(1).Find(&existing).Error; err != nil {
			return nil, fmt.Errorf("find tag %q: %w", name, err)
		}
		if len(existing) > 0 {
			return &existing[0], nil
		}

		tag := models.Tag{Name: name}
		result := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&tag)
		if result.Error != nil {
			return nil, fmt.Errorf("create tag %q: %w", name, result.Error)
		}
		if result.RowsAffected > 0 && tag.ID != 0 {
			return &tag, nil
		}
	}
	return nil, fmt.Errorf("create tag %q: gave up after %d conflicting attempts", name, findOrCreateAttempts)
}

func (s *Store) postTags(ctx context.Context, postID uint) ([]models.Tag, error) {
	tags := []models.Tag{}
	err := s.conn(ctx).
		Joins("JOIN post_tags ON post_tags.tag_id = tags.id").
		Where("post_tags.post_id = ?", postID).
		Order("tags.name ASC").
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}
