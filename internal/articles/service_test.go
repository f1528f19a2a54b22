package articles

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubdesk/pubdesk/internal/perm"
	"github.com/pubdesk/pubdesk/internal/profiles"
	"github.com/pubdesk/pubdesk/internal/watch"
)

type mockRepository struct {
	byID   map[int64]*Article
	nextID int64

	createError error
	updateError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{byID: make(map[int64]*Article), nextID: 1}
}

func (m *mockRepository) List(ctx context.Context, scope Scope) ([]Article, error) {
	var out []Article
	for _, a := range m.byID {
		if !scope.All && a.CreatedBy != scope.Owner {
			continue
		}
		if scope.Query != "" {
			q := strings.ToLower(scope.Query)
			if !strings.Contains(strings.ToLower(a.Title), q) &&
				!strings.Contains(strings.ToLower(a.Authors), q) &&
				!strings.Contains(strings.ToLower(a.Venue), q) {
				continue
			}
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Article, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepository) Create(ctx context.Context, a *Article) error {
	if m.createError != nil {
		return m.createError
	}
	a.ID = m.nextID
	m.nextID++
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *mockRepository) Update(ctx context.Context, a *Article) error {
	if m.updateError != nil {
		return m.updateError
	}
	stored, ok := m.byID[a.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Title = a.Title
	stored.Authors = a.Authors
	stored.Venue = a.Venue
	stored.Category = a.Category
	stored.UpdatedAt = a.UpdatedAt
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *mockRepository) CountByCategory(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, a := range m.byID {
		out[a.Category]++
	}
	return out, nil
}

var _ Repository = (*mockRepository)(nil)

type recordingPublisher struct {
	events []watch.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev watch.Event) {
	p.events = append(p.events, ev)
}

func member(id string, caps ...string) *profiles.Profile {
	set := perm.None()
	set.Grant(perm.ModuleArticles, perm.CapAccess, true)
	for _, path := range caps {
		m, c, err := perm.ParsePath(path)
		if err != nil {
			panic(err)
		}
		set.Grant(m, c, true)
	}
	return &profiles.Profile{ID: id, Email: id + "@uni.edu", Role: profiles.RoleMember, Permissions: set}
}

func validForm() ArticleForm {
	return ArticleForm{Title: "Title", Authors: "A. Author", Venue: "Venue", Category: "Journal"}
}

func seedArticle(t *testing.T, svc *Service, owner *profiles.Profile, title string) *Article {
	t.Helper()
	form := validForm()
	form.Title = title
	a, err := svc.Create(context.Background(), owner, form)
	require.NoError(t, err)
	return a
}

func TestCreateRequiresCreateCapability(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil)

	_, err := svc.Create(context.Background(), member("u1"), validForm())
	assert.ErrorIs(t, err, ErrForbidden)

	a, err := svc.Create(context.Background(), member("u1", "articles.create"), validForm())
	require.NoError(t, err)
	assert.Equal(t, "u1", a.CreatedBy)
	assert.Equal(t, "u1@uni.edu", a.CreatedEmail)
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)
}

func TestCreateRejectsInvalidForm(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil)
	author := member("u1", "articles.create")

	missing := validForm()
	missing.Title = ""
	_, err := svc.Create(context.Background(), author, missing)
	assert.Error(t, err)

	badCategory := validForm()
	badCategory.Category = "Zine"
	_, err = svc.Create(context.Background(), author, badCategory)
	assert.Error(t, err)
}

func TestListScopesToOwnerWithoutViewAll(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	alice := member("alice", "articles.create")
	bob := member("bob", "articles.create")
	seedArticle(t, svc, alice, "Alice One")
	seedArticle(t, svc, bob, "Bob One")
	seedArticle(t, svc, bob, "Bob Two")

	mine, err := svc.List(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "alice", mine[0].CreatedBy)

	viewer := member("alice", "articles.create", "articles.view_all")
	all, err := svc.List(ctx, viewer, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := svc.List(ctx, viewer, "bob two")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Bob Two", found[0].Title)
}

func TestSuperAdminSeesEverything(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	bob := member("bob", "articles.create")
	seedArticle(t, svc, bob, "Bob One")

	super := &profiles.Profile{ID: "su", Role: profiles.RoleSuperAdmin}
	all, err := svc.List(context.Background(), super, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCanManage(t *testing.T) {
	owner := member("owner", "articles.create")
	a := &Article{ID: 1, CreatedBy: "owner"}

	assert.True(t, CanManage(owner, a), "author with create keeps control of own article")
	assert.False(t, CanManage(member("owner"), a), "author who lost create loses control")
	assert.False(t, CanManage(member("other", "articles.create"), a), "strangers never manage")
	assert.True(t, CanManage(member("other", "articles.manage_others"), a))
	assert.True(t, CanManage(&profiles.Profile{ID: "su", Role: profiles.RoleSuperAdmin}, a))
}

func TestUpdatePreservesOwnership(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	owner := member("owner", "articles.create")
	a := seedArticle(t, svc, owner, "Original")

	manager := member("editor", "articles.manage_others", "articles.view_all")
	form := validForm()
	form.Title = "Edited"
	updated, err := svc.Update(ctx, manager, a.ID, form)
	require.NoError(t, err)

	assert.Equal(t, "Edited", updated.Title)
	assert.Equal(t, "owner", updated.CreatedBy, "owner must survive edits by others")
	assert.Equal(t, "owner@uni.edu", updated.CreatedEmail)
	assert.Equal(t, a.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt) || updated.UpdatedAt.Equal(a.UpdatedAt))
}

func TestUpdateForbiddenForStrangers(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	owner := member("owner", "articles.create")
	a := seedArticle(t, svc, owner, "Original")

	_, err := svc.Update(context.Background(), member("other", "articles.create"), a.ID, validForm())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeletePublishesEvent(t *testing.T) {
	repo := newMockRepository()
	pub := &recordingPublisher{}
	svc := NewService(repo, pub, nil)
	ctx := context.Background()

	owner := member("owner", "articles.create")
	a := seedArticle(t, svc, owner, "Doomed")

	require.NoError(t, svc.Delete(ctx, owner, a.ID))
	_, err := repo.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, pub.events, 2)
	assert.Equal(t, watch.KindCreated, pub.events[0].Kind)
	assert.Equal(t, watch.KindDeleted, pub.events[1].Kind)
	assert.Equal(t, a.ID, pub.events[1].ID)
	assert.Equal(t, "owner", pub.events[1].Owner)
}

func TestGetScopedToOwner(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	owner := member("owner", "articles.create")
	a := seedArticle(t, svc, owner, "Private")

	_, err := svc.Get(ctx, member("other"), a.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.Get(ctx, member("other", "articles.view_all"), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestScopeFor(t *testing.T) {
	viewer := member("v", "articles.view_all")
	assert.True(t, ScopeFor(viewer, "").All)

	plain := member("p")
	scope := ScopeFor(plain, "needle")
	assert.False(t, scope.All)
	assert.Equal(t, "p", scope.Owner)
	assert.Equal(t, "needle", scope.Query)
}

func TestCountByCategory(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)
	owner := member("o", "articles.create")

	seedArticle(t, svc, owner, "One")
	form := validForm()
	form.Title = "Two"
	form.Category = "Conference"
	_, err := svc.Create(context.Background(), owner, form)
	require.NoError(t, err)

	counts, err := repo.CountByCategory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["Journal"])
	assert.Equal(t, int64(1), counts["Conference"])
}
