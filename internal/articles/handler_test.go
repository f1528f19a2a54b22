package articles

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubdesk/pubdesk/internal/authz"
	"github.com/pubdesk/pubdesk/internal/profiles"
	"github.com/pubdesk/pubdesk/internal/shared"
	"github.com/pubdesk/pubdesk/internal/view"
	"github.com/pubdesk/pubdesk/internal/watch"
	"github.com/pubdesk/pubdesk/web"
)

type staticProfileStore struct {
	byID map[string]*profiles.Profile
}

func (s *staticProfileStore) Get(ctx context.Context, id string) (*profiles.Profile, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, profiles.ErrNotFound
	}
	return p, nil
}

type fixture struct {
	router chi.Router
	repo   *mockRepository
	hub    *watch.Hub
}

func newFixture(t *testing.T, people ...*profiles.Profile) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(client, "pubdesk_session", time.Hour, false)
	store := &staticProfileStore{byID: make(map[string]*profiles.Profile)}
	for _, p := range people {
		store.byID[p.ID] = p
	}
	gate := &authz.Gate{Logger: logger, Profiles: store, Sessions: sessions, LoginPath: "/welcome"}

	views, err := view.NewEngine(web.Templates)
	require.NoError(t, err)

	repo := newMockRepository()
	hub := watch.NewHub(client, logger)
	service := NewService(repo, hub, logger)
	handler := NewHandler(logger, service, views, shared.NewCSRFManager([]byte("test-secret")), hub)

	r := chi.NewRouter()
	r.Use(sessions.Middleware(logger))
	r.Use(testUserMiddleware)
	r.Route("/articles", func(r chi.Router) {
		handler.MountRoutes(r, gate)
	})

	return &fixture{router: r, repo: repo, hub: hub}
}

// testUserMiddleware binds the session to the X-Test-User header, standing
// in for a completed sign-in.
func testUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get("X-Test-User"); user != "" {
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.SetUser(user)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fixture) get(t *testing.T, target, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) post(t *testing.T, target, user string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func articleFormValues(title string) url.Values {
	return url.Values{
		"title":    {title},
		"authors":  {"A. Author"},
		"venue":    {"Venue"},
		"category": {"Journal"},
	}
}

func TestListRequiresSignIn(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/articles", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/welcome", rec.Header().Get("Location"))
}

func TestListShowsOnlyOwnArticlesWithoutViewAll(t *testing.T) {
	alice := member("alice", "articles.create")
	bob := member("bob", "articles.create")
	f := newFixture(t, alice, bob)

	f.post(t, "/articles", "alice", articleFormValues("Alice Article"))
	f.post(t, "/articles", "bob", articleFormValues("Bob Article"))

	rec := f.get(t, "/articles", "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Alice Article")
	assert.NotContains(t, body, "Bob Article")
}

func TestCreateRouteRequiresCreateCapability(t *testing.T) {
	reader := member("reader")
	f := newFixture(t, reader)

	rec := f.post(t, "/articles", "reader", articleFormValues("Nope"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	items, err := f.repo.List(context.Background(), Scope{All: true})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateRedisplaysFormOnValidationError(t *testing.T) {
	author := member("author", "articles.create")
	f := newFixture(t, author)

	form := articleFormValues("")
	rec := f.post(t, "/articles", "author", form)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "valid category")
}

func TestEditRouteHiddenFromNonManagers(t *testing.T) {
	author := member("author", "articles.create")
	other := member("other", "articles.view_all")
	f := newFixture(t, author, other)

	f.post(t, "/articles", "author", articleFormValues("Owned"))

	rec := f.get(t, "/articles/1/edit", "other")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/articles", rec.Header().Get("Location"))
}

func TestEditAndDeleteByManager(t *testing.T) {
	author := member("author", "articles.create")
	manager := member("manager", "articles.view_all", "articles.manage_others")
	f := newFixture(t, author, manager)

	f.post(t, "/articles", "author", articleFormValues("Owned"))

	rec := f.post(t, "/articles/1", "manager", articleFormValues("Renamed"))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	a, err := f.repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", a.Title)
	assert.Equal(t, "author", a.CreatedBy)

	rec = f.post(t, "/articles/1/delete", "manager", url.Values{})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	_, err = f.repo.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFormAsksForConfirmation(t *testing.T) {
	manager := member("manager", "articles.create", "articles.manage_others")
	f := newFixture(t, manager)

	f.post(t, "/articles", "manager", articleFormValues("Owned"))

	rec := f.get(t, "/articles", "manager")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "/articles/1/delete")
	assert.Contains(t, body, "confirm(")
}

func TestListPageLoadsStreamScript(t *testing.T) {
	author := member("author", "articles.create")
	f := newFixture(t, author)

	rec := f.get(t, "/articles", "author")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/static/js/stream.js")
}

func TestPrintViewPadsShortCatalogue(t *testing.T) {
	author := member("author", "articles.create")
	f := newFixture(t, author)

	f.post(t, "/articles", "author", articleFormValues("Only One"))

	rec := f.get(t, "/articles/print", "author")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Only One")
	// One real row plus four blank pad rows keeps the sheet at five lines.
	assert.Equal(t, 4, strings.Count(body, `class="pad"`))
}

func TestPrintViewShowsSignerBlock(t *testing.T) {
	author := member("author", "articles.create")
	author.DisplayName = "Nguyen Van A"
	f := newFixture(t, author)

	rec := f.get(t, "/articles/print", "author")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "NGUYEN VAN A")
	assert.Contains(t, body, "author@uni.edu")
}

func TestStreamDeliversScopedEvents(t *testing.T) {
	author := member("author", "articles.create")
	f := newFixture(t, author)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/articles/stream", nil).WithContext(ctx)
	req.Header.Set("X-Test-User", "author")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.router.ServeHTTP(rec, req)
	}()

	// Give the subscriber time to attach before publishing.
	time.Sleep(100 * time.Millisecond)
	f.hub.Publish(context.Background(), watch.Event{Kind: watch.KindCreated, ID: 7, Owner: "author", At: time.Now()})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Contains(t, body, "event: change")
	assert.Contains(t, body, `"id":7`)
}
