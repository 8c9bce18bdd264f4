package store

import (
	"context"
	"fmt"
	"strings"

	"scrollpress/common"
	"scrollpress/models"
)

// ListTags returns every tag ordered by name, orphans included, with its post count.
func (s *Store) ListTags(ctx context.Context) ([]models.TagSummary, error) {
	summaries := []models.TagSummary{}
	err := s.conn(ctx).
		Model(&models.Tag{}).
		Select("tags.id, tags.name, tags.name_key, COUNT(post_tags.post_id) AS post_count").
		Joins("LEFT JOIN post_tags ON post_tags.tag_id = tags.id").
		Group("tags.id, tags.name, tags.name_key").
		Order("tags.name ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) GetTag(ctx context.Context, id uint) (*models.Tag, error) {
	var tag models.Tag
	if err := s.conn(ctx).First(&tag, id).Error; err != nil {
		return nil, notFound(err, "tag %d not found", id)
	}
	return &tag, nil
}

// CreateTag is find-or-create: created reports whether a new row was written.
func (s *Store) CreateTag(ctx context.Context, name string) (tag *models.Tag, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, common.Invalid("tag name is required")
	}
	err = s.Transaction(ctx, func(tx *Store) error {
		var existing []models.Tag
		if err := tx.conn(ctx).Where("name_key = ?", models.TagKey(name)).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) > 0 {
			tag = &existing[0]
			return nil
		}
		t, err := tx.findOrCreateTag(ctx, name)
		if err != nil {
			return err
		}
		tag, created = t, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return tag, created, nil
}

// RenameTag renames a tag. When another tag already owns the new name the two are merged:
// the renamed tag's posts move to the existing tag and the renamed tag row is removed.
// The returned tag is the survivor.
func (s *Store) RenameTag(ctx context.Context, id uint, newName string) (*models.Tag, bool, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, false, common.Invalid("tag name is required")
	}

	var (
		survivor models.Tag
		merged   bool
	)
	err := s.Transaction(ctx, func(tx *Store) error {
		var tag models.Tag
		if err := tx.conn(ctx).First(&tag, id).Error; err != nil {
			return notFound(err, "tag %d not found", id)
		}

		var targets []models.Tag
		err := tx.conn(ctx).
			Where("name_key = ? AND id <> ?", models.TagKey(newName), id).
			Limit(1).
			Find(&targets).Error
		if err != nil {
			return err
		}

		if len(targets) == 0 {
			tag.Name = newName
			if err := tx.conn(ctx).Save(&tag).Error; err != nil {
				return fmt.Errorf("rename tag %d: %w", id, err)
			}
			survivor = tag
			return nil
		}

		target := targets[0]
		if err := tx.mergeTag(ctx, tag.ID, target.ID); err != nil {
			return err
		}
		survivor, merged = target, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &survivor, merged, nil
}

// mergeTag moves every association of from onto into without duplicating rows, then deletes from.
func (s *Store) mergeTag(ctx context.Context, from, into uint) error {
	err := s.conn(ctx).Exec(
		`INSERT INTO post_tags (post_id, tag_id)
		 SELECT post_id, ? FROM post_tags
		 WHERE tag_id = ? AND post_id NOT IN (SELECT post_id FROM post_tags WHERE tag_id = ?)`,
		into, from, into,
	).Error
	if err != nil {
		return fmt.Errorf("move posts from tag %d to %d: %w", from, into, err)
	}
	if err := s.conn(ctx).Where("tag_id = ?", from).Delete(&models.PostTag{}).Error; err != nil {
		return fmt.Errorf("drop associations of tag %d: %w", from, err)
	}
	if err := s.conn(ctx).Delete(&models.Tag{}, from).Error; err != nil {
		return fmt.Errorf("delete merged tag %d: %w", from, err)
	}
	return nil
}

// DeleteTag removes the tag and its associations; the posts stay.
func (s *Store) DeleteTag(ctx context.Context, id uint) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.conn(ctx).Where("tag_id = ?", id).Delete(&models.PostTag{}).Error; err != nil {
			return err
		}
		result := tx.conn(ctx).Delete(&models.Tag{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return common.NotFound("tag %d not found", id)
		}
		return nil
	})
}
