package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
)

type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Content     string    `gorm:"type:text;not null" json:"content"` // markdown
	Status      string    `gorm:"type:varchar(16);not null;default:'publish';index" json:"status"`
	PublishDate time.Time `gorm:"not null;index" json:"publishDate"`
	Likes       int64     `gorm:"not null;default:0" json:"likes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Tags     []Tag     `gorm:"many2many:post_tags;" json:"tags"`
	Comments []Comment `gorm:"foreignKey:PostID" json:"comments,omitempty"`
}

// Tag names are unique ignoring case: NameKey holds the folded name and carries the unique index.
type Tag struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"type:varchar(191);not null" json:"name"`
	NameKey string `gorm:"type:varchar(191);not null;uniqueIndex" json:"-"`
}

// TagSummary is a tag with the number of posts carrying it.
type TagSummary struct {
	Tag
	PostCount int64 `json:"postCount"`
}

// PostTag is the post_tags join row.
type PostTag struct {
	PostID uint `gorm:"primaryKey;autoIncrement:false" json:"postId"`
	TagID  uint `gorm:"primaryKey;autoIncrement:false;index" json:"tagId"`
}

func (PostTag) TableName() string {
	return "post_tags"
}

type Comment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PostID      uint      `gorm:"not null;index" json:"postId"`
	ParentID    *uint     `gorm:"index" json:"parentId"` // nil for top-level comments
	Author      string    `gorm:"not null" json:"author"`
	AuthorEmail string    `json:"authorEmail,omitempty"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	PublishDate time.Time `gorm:"not null;index" json:"publishDate"`
}

func ValidStatus(status string) bool {
	return status == StatusPublish || status == StatusDraft
}

// TagKey folds a tag name for uniqueness checks.
func TagKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.PublishDate.IsZero() {
		p.PublishDate = time.Now()
	}
	if p.Status == "" {
		p.Status = StatusPublish
	}
	return nil
}

func (t *Tag) BeforeSave(tx *gorm.DB) error {
	t.Name = strings.TrimSpace(t.Name)
	t.NameKey = TagKey(t.Name)
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.PublishDate.IsZero() {
		c.PublishDate = time.Now()
	}
	return nil
}
