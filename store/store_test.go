package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"scrollpress/common"
	"scrollpress/database"
	"scrollpress/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to ":memory:" would be its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return New(db)
}

func strPtr(s string) *string {
	return &s
}

func createTestPost(t *testing.T, s *Store, title, tags string) *models.Post {
	t.Helper()
	post, err := s.CreatePost(context.Background(), PostInput{
		Title:   title,
		Content: "# " + title + "\n\nbody",
		Tags:    strPtr(tags),
	})
	require.NoError(t, err)
	return post
}

func tagNames(tags []models.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}

func countRows(t *testing.T, s *Store, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB().Model(model).Count(&n).Error)
	return n
}

func TestParseTagNames(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", []string{}},
		{" , ,", []string{}},
		{"go", []string{"go"}},
		{"go, Go, go ", []string{"go"}},
		{" a ,b,, c ", []string{"a", "b", "c"}},
		{"Rust, rust, RUST, web", []string{"Rust", "web"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseTagNames(tt.input))
		})
	}
}

func TestCreatePost_TagsTrimmedAndDeduplicated(t *testing.T) {
	s := setupTestStore(t)

	post := createTestPost(t, s, "Hello", "go, Go, go ")

	assert.Equal(t, []string{"go"}, tagNames(post.Tags))
	assert.Equal(t, int64(1), countRows(t, s, &models.Tag{}))
	assert.Equal(t, int64(1), countRows(t, s, &models.PostTag{}))
}

func TestCreatePost_Defaults(t *testing.T) {
	s := setupTestStore(t)
	before := time.Now().Add(-time.Second)

	post := createTestPost(t, s, "  Defaults  ", "")

	assert.Equal(t, "Defaults", post.Title)
	assert.Equal(t, models.StatusPublish, post.Status)
	assert.Equal(t, int64(0), post.Likes)
	assert.True(t, post.PublishDate.After(before))
	assert.Empty(t, post.Tags)
}

func TestCreatePost_Validation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input PostInput
	}{
		{"empty title", PostInput{Title: "  ", Content: "x"}},
		{"empty content", PostInput{Title: "x", Content: "\n"}},
		{"bad status", PostInput{Title: "x", Content: "x", Status: "archived"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreatePost(ctx, tt.input)
			assert.True(t, errors.Is(err, common.ErrValidation))
		})
	}
	assert.Equal(t, int64(0), countRows(t, s, &models.Post{}))
}

func TestReconcileTags_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "")

	raw := " db ,go,, DB, web "
	first, err := s.ReconcileTags(ctx, post.ID, strPtr(raw))
	require.NoError(t, err)
	second, err := s.ReconcileTags(ctx, post.ID, strPtr(raw))
	require.NoError(t, err)

	assert.ElementsMatch(t, tagNames(first), tagNames(second))
	assert.ElementsMatch(t, []string{"db", "go", "web"}, tagNames(second))
	assert.Equal(t, int64(3), countRows(t, s, &models.PostTag{}))
	assert.Equal(t, int64(3), countRows(t, s, &models.Tag{}))
}

func TestReconcileTags_EmptyClearsNilKeeps(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "a, b")

	kept, err := s.ReconcileTags(ctx, post.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tagNames(kept))

	cleared, err := s.ReconcileTags(ctx, post.ID, strPtr(""))
	require.NoError(t, err)
	assert.Empty(t, cleared)
	assert.Equal(t, int64(0), countRows(t, s, &models.PostTag{}))

	// orphans persist
	assert.Equal(t, int64(2), countRows(t, s, &models.Tag{}))
}

func TestReconcileTags_ReplacesNotUnion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "a, b")

	tags, err := s.ReconcileTags(ctx, post.ID, strPtr("b, c"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b", "c"}, tagNames(tags))
	current, err := s.postTags(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, tagNames(current))
}

func TestReconcileTags_ReusesExistingTagIgnoringCase(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	first := createTestPost(t, s, "First", "Golang")
	second := createTestPost(t, s, "Second", "")

	tags, err := s.ReconcileTags(ctx, second.ID, strPtr("golang"))
	require.NoError(t, err)

	require.Len(t, tags, 1)
	assert.Equal(t, first.Tags[0].ID, tags[0].ID)
	assert.Equal(t, "Golang", tags[0].Name)
}

func TestReconcileTags_MissingPost(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.ReconcileTags(context.Background(), 42, strPtr("a"))

	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, int64(0), countRows(t, s, &models.Tag{}))
}

// beforeCreate runs fn ahead of every INSERT into table.
func beforeCreate(t *testing.T, s *Store, table string, fn func(tx *gorm.DB)) {
	t.Helper()
	err := s.DB().Callback().Create().Before("gorm:create").Register("test:before_create_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			fn(tx)
		}
	})
	require.NoError(t, err)
}

// beforeDelete runs fn ahead of every DELETE from table.
func beforeDelete(t *testing.T, s *Store, table string, fn func(tx *gorm.DB)) {
	t.Helper()
	err := s.DB().Callback().Delete().Before("gorm:delete").Register("test:before_delete_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			fn(tx)
		}
	})
	require.NoError(t, err)
}

func TestReconcileTags_InsertConflictResolvesToWinner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "")

	// another writer commits the same name between our lookup and our insert
	raced := false
	beforeCreate(t, s, "tags", func(tx *gorm.DB) {
		if raced {
			return
		}
		raced = true
		err := tx.Session(&gorm.Session{NewDB: true}).
			Exec("INSERT INTO tags (name, name_key) VALUES (?, ?)", "Race", "race").Error
		require.NoError(t, err)
	})

	tags, err := s.ReconcileTags(ctx, post.ID, strPtr("race"))
	require.NoError(t, err)

	assert.True(t, raced)
	require.Len(t, tags, 1)
	assert.Equal(t, "Race", tags[0].Name)
	assert.NotZero(t, tags[0].ID)
	assert.Equal(t, int64(1), countRows(t, s, &models.Tag{}))

	current, err := s.postTags(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, tags[0].ID, current[0].ID)
}

func TestReconcileTags_FailureLeavesTagSetUnchanged(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "a, b")

	beforeCreate(t, s, "post_tags", func(tx *gorm.DB) {
		tx.AddError(errors.New("post_tags insert failed"))
	})

	_, err := s.ReconcileTags(ctx, post.ID, strPtr("c, d"))
	require.Error(t, err)

	current, err := s.postTags(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tagNames(current))
	assert.Equal(t, int64(2), countRows(t, s, &models.Tag{}))

	var created int64
	require.NoError(t, s.DB().Model(&models.Tag{}).Where("name_key IN ?", []string{"c", "d"}).Count(&created).Error)
	assert.Zero(t, created)
}

func TestRenameTag_MergeFailureLeavesStoreUnchanged(t *testing.T) {
	for _, table := range []string{"post_tags", "tags"} {
		t.Run(table, func(t *testing.T) {
			s := setupTestStore(t)
			ctx := context.Background()
			onlyA := createTestPost(t, s, "Only A", "a")
			both := createTestPost(t, s, "Both", "a, b")
			onlyB := createTestPost(t, s, "Only B", "b")

			beforeDelete(t, s, table, func(tx *gorm.DB) {
				tx.AddError(errors.New(table + " delete failed"))
			})

			_, _, err := s.RenameTag(ctx, onlyA.Tags[0].ID, "b")
			require.Error(t, err)

			assert.Equal(t, int64(2), countRows(t, s, &models.Tag{}))
			assert.Equal(t, int64(4), countRows(t, s, &models.PostTag{}))
			expected := map[uint][]string{
				onlyA.ID: {"a"},
				both.ID:  {"a", "b"},
				onlyB.ID: {"b"},
			}
			for id, names := range expected {
				tags, err := s.postTags(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, names, tagNames(tags))
			}
		})
	}
}

func TestUpdatePost_NilTagsUntouched(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "a, b")

	updated, err := s.UpdatePost(ctx, post.ID, PostInput{Title: "New", Content: "new body", Status: "draft"})
	require.NoError(t, err)

	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, models.StatusDraft, updated.Status)
	assert.Equal(t, []string{"a", "b"}, tagNames(updated.Tags))
}

func TestUpdatePost_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.UpdatePost(context.Background(), 9, PostInput{Title: "x", Content: "y"})

	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRenameTag_Simple(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "golang")

	tag, merged, err := s.RenameTag(ctx, post.Tags[0].ID, "  Go  ")
	require.NoError(t, err)

	assert.False(t, merged)
	assert.Equal(t, "Go", tag.Name)
	assert.Equal(t, post.Tags[0].ID, tag.ID)
}

func TestRenameTag_SameNameIsNoop(t *testing.T) {
	s := setupTestStore(t)
	post := createTestPost(t, s, "Post", "go")

	tag, merged, err := s.RenameTag(context.Background(), post.Tags[0].ID, "go")
	require.NoError(t, err)

	assert.False(t, merged)
	assert.Equal(t, "go", tag.Name)
	assert.Equal(t, int64(1), countRows(t, s, &models.Tag{}))
}

func TestRenameTag_MergesIntoExisting(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	onlyA := createTestPost(t, s, "Only A", "a")
	both := createTestPost(t, s, "Both", "a, b")
	onlyB := createTestPost(t, s, "Only B", "b")

	tagA, err := s.findOrCreateTag(ctx, "a")
	require.NoError(t, err)
	tagB, err := s.findOrCreateTag(ctx, "b")
	require.NoError(t, err)

	survivor, merged, err := s.RenameTag(ctx, tagA.ID, "b")
	require.NoError(t, err)

	assert.True(t, merged)
	assert.Equal(t, tagB.ID, survivor.ID)

	_, err = s.GetTag(ctx, tagA.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	for _, p := range []*models.Post{onlyA, both, onlyB} {
		tags, err := s.postTags(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, tagNames(tags), p.Title)
	}
	assert.Equal(t, int64(3), countRows(t, s, &models.PostTag{}))
}

func TestRenameTag_Validation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "a")

	_, _, err := s.RenameTag(ctx, post.Tags[0].ID, "   ")
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, _, err = s.RenameTag(ctx, 999, "x")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCreateTag_FindOrCreate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tag, created, err := s.CreateTag(ctx, " news ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "news", tag.Name)

	again, created, err := s.CreateTag(ctx, "NEWS")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, tag.ID, again.ID)

	_, _, err = s.CreateTag(ctx, "")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestDeleteTag_KeepsPosts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "a, b")

	require.NoError(t, s.DeleteTag(ctx, post.Tags[0].ID))

	reloaded, err := s.GetPost(ctx, post.ID, PostQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, tagNames(reloaded.Tags))

	err = s.DeleteTag(ctx, post.Tags[0].ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestListTags_CountsIncludeOrphans(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestPost(t, s, "One", "go, web")
	createTestPost(t, s, "Two", "go")
	_, _, err := s.CreateTag(ctx, "orphan")
	require.NoError(t, err)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)

	counts := map[string]int64{}
	for _, tag := range tags {
		counts[tag.Name] = tag.PostCount
	}
	assert.Equal(t, map[string]int64{"go": 2, "orphan": 0, "web": 1}, counts)
	assert.Equal(t, "go", tags[0].Name)
}

func TestListPosts_PublishedNewestFirstAndTagFilter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	_, err := s.CreatePost(ctx, PostInput{Title: "Old", Content: "x", Tags: strPtr("go"), PublishDate: &old})
	require.NoError(t, err)
	createTestPost(t, s, "New", "go, web")
	_, err = s.CreatePost(ctx, PostInput{Title: "Draft", Content: "x", Status: "draft", Tags: strPtr("go")})
	require.NoError(t, err)

	posts, err := s.ListPosts(ctx, PostFilter{OnlyPublished: true})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "New", posts[0].Title)
	assert.Equal(t, "Old", posts[1].Title)
	assert.Equal(t, []string{"go", "web"}, tagNames(posts[0].Tags))

	web, err := s.ListPosts(ctx, PostFilter{OnlyPublished: true, Tag: "WEB"})
	require.NoError(t, err)
	require.Len(t, web, 1)
	assert.Equal(t, "New", web[0].Title)

	all, err := s.ListPosts(ctx, PostFilter{Tag: "go"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeletePost_CascadesComments(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "a")
	other := createTestPost(t, s, "Other", "a")

	_, err := s.CreateComment(ctx, post.ID, CommentInput{Author: "ann", Content: "hi"})
	require.NoError(t, err)
	_, err = s.CreateComment(ctx, other.ID, CommentInput{Author: "bob", Content: "yo"})
	require.NoError(t, err)

	require.NoError(t, s.DeletePost(ctx, post.ID))

	_, err = s.GetPost(ctx, post.ID, PostQuery{})
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, int64(1), countRows(t, s, &models.Comment{}))
	assert.Equal(t, int64(1), countRows(t, s, &models.PostTag{}))
	assert.Equal(t, int64(1), countRows(t, s, &models.Tag{}))

	assert.True(t, errors.Is(s.DeletePost(ctx, post.ID), common.ErrNotFound))
}

func TestLikePost_Sequential(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "")

	const n = 7
	var last *models.Post
	for i := 0; i < n; i++ {
		var err error
		last, err = s.LikePost(ctx, post.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(n), last.Likes)

	_, err := s.LikePost(ctx, 404)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCreateComment_Validation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "")

	_, err := s.CreateComment(ctx, post.ID, CommentInput{Author: "  ", Content: "hi"})
	assert.True(t, errors.Is(err, common.ErrValidation))
	_, err = s.CreateComment(ctx, post.ID, CommentInput{Author: "ann", Content: ""})
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Equal(t, int64(0), countRows(t, s, &models.Comment{}))

	_, err = s.CreateComment(ctx, 77, CommentInput{Author: "ann", Content: "hi"})
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCreateComment_ParentMustShareThePost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "")
	other := createTestPost(t, s, "Other", "")

	root, err := s.CreateComment(ctx, other.ID, CommentInput{Author: "ann", Content: "root"})
	require.NoError(t, err)

	_, err = s.CreateComment(ctx, post.ID, CommentInput{Author: "bob", Content: "reply", ParentID: &root.ID})
	assert.True(t, errors.Is(err, common.ErrValidation))

	missing := uint(999)
	_, err = s.CreateComment(ctx, post.ID, CommentInput{Author: "bob", Content: "reply", ParentID: &missing})
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestRepliesAndDeleteThread(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	post := createTestPost(t, s, "Post", "")

	root, err := s.CreateComment(ctx, post.ID, CommentInput{Author: "a", Content: "root"})
	require.NoError(t, err)
	child, err := s.CreateComment(ctx, post.ID, CommentInput{Author: "b", Content: "child", ParentID: &root.ID})
	require.NoError(t, err)
	grandchild, err := s.CreateComment(ctx, post.ID, CommentInput{Author: "c", Content: "grandchild", ParentID: &child.ID})
	require.NoError(t, err)
	sibling, err := s.CreateComment(ctx, post.ID, CommentInput{Author: "d", Content: "sibling"})
	require.NoError(t, err)

	replies, err := s.Replies(ctx, root.ID)
	require.NoError(t, err)
	ids := []uint{}
	for _, r := range replies {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uint{child.ID, grandchild.ID}, ids)

	require.NoError(t, s.DeleteComment(ctx, child.ID))

	remaining, err := s.ListComments(ctx, &post.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, sibling.ID, remaining[0].ID)
	assert.Equal(t, root.ID, remaining[1].ID)

	_, err = s.Replies(ctx, child.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRewriteContentLinks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	legacy := "http://old.example.com/wp-content/uploads"

	_, err := s.CreatePost(ctx, PostInput{Title: "Pics", Content: "![a](" + legacy + "/a.png) ![b](" + legacy + "/b.png)"})
	require.NoError(t, err)
	plain := createTestPost(t, s, "Plain", "")

	n, err := s.RewriteContentLinks(ctx, legacy, "/uploads")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	posts, err := s.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	for _, p := range posts {
		assert.NotContains(t, p.Content, legacy)
		if p.ID == plain.ID {
			assert.Equal(t, plain.Content, p.Content)
		}
	}

	_, err = s.RewriteContentLinks(ctx, " ", "/uploads")
	assert.True(t, errors.Is(err, common.ErrValidation))
}
