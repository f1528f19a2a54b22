package articles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pubdesk/pubdesk/internal/perm"
	"github.com/pubdesk/pubdesk/internal/profiles"
	"github.com/pubdesk/pubdesk/internal/watch"
)

var (
	// ErrForbidden rejects operations the profile's grants do not cover.
	ErrForbidden = errors.New("articles: forbidden")
)

// Publisher broadcasts change events to live listeners.
type Publisher interface {
	Publish(ctx context.Context, ev watch.Event)
}

// Service enforces the article-level permission rules on top of storage.
type Service struct {
	repo   Repository
	events Publisher
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, events Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, events: events, logger: logger}
}

// ScopeFor derives the listing scope from the viewer's grants: view_all sees
// the whole catalogue, everyone else only their own rows.
func ScopeFor(p *profiles.Profile, query string) Scope {
	return Scope{
		All:   p.Can(perm.ModuleArticles, perm.CapViewAll),
		Owner: ownerID(p),
		Query: query,
	}
}

// CanManage reports whether the profile may edit or delete the article:
// either it manages others' articles, or it authored this one and can
// still create.
func CanManage(p *profiles.Profile, a *Article) bool {
	if p == nil || a == nil {
		return false
	}
	if p.Can(perm.ModuleArticles, perm.CapManageOthers) {
		return true
	}
	return a.CreatedBy == p.ID && p.Can(perm.ModuleArticles, perm.CapCreate)
}

// List returns the articles the profile may see, newest first.
func (s *Service) List(ctx context.Context, p *profiles.Profile, query string) ([]Article, error) {
	return s.repo.List(ctx, ScopeFor(p, query))
}

// Get fetches an article the profile may see.
func (s *Service) Get(ctx context.Context, p *profiles.Profile, id int64) (*Article, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Can(perm.ModuleArticles, perm.CapViewAll) && a.CreatedBy != ownerID(p) {
		return nil, ErrForbidden
	}
	return a, nil
}

// Create stores a new article owned by the acting profile.
func (s *Service) Create(ctx context.Context, p *profiles.Profile, form ArticleForm) (*Article, error) {
	if !p.Can(perm.ModuleArticles, perm.CapCreate) {
		return nil, ErrForbidden
	}
	if err := form.Validate(); err != nil {
		return nil, fmt.Errorf("articles: invalid form: %w", err)
	}

	now := time.Now().UTC()
	a := &Article{
		Title:        form.Title,
		Authors:      form.Authors,
		Venue:        form.Venue,
		Category:     form.Category,
		CreatedBy:    p.ID,
		CreatedEmail: p.Email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.publish(ctx, watch.KindCreated, a)
	s.log("article created", a)
	return a, nil
}

// Update rewrites the editable fields of an article the profile manages.
// The stored owner and owner email survive any number of edits.
func (s *Service) Update(ctx context.Context, p *profiles.Profile, id int64, form ArticleForm) (*Article, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanManage(p, a) {
		return nil, ErrForbidden
	}
	if err := form.Validate(); err != nil {
		return nil, fmt.Errorf("articles: invalid form: %w", err)
	}

	a.Title = form.Title
	a.Authors = form.Authors
	a.Venue = form.Venue
	a.Category = form.Category
	a.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.publish(ctx, watch.KindUpdated, a)
	s.log("article updated", a)
	return a, nil
}

// Delete removes an article the profile manages.
func (s *Service) Delete(ctx context.Context, p *profiles.Profile, id int64) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanManage(p, a) {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, watch.KindDeleted, a)
	s.log("article deleted", a)
	return nil
}

func (s *Service) publish(ctx context.Context, kind string, a *Article) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, watch.Event{
		Kind:  kind,
		ID:    a.ID,
		Owner: a.CreatedBy,
		At:    time.Now().UTC(),
	})
}

func (s *Service) log(msg string, a *Article) {
	if s.logger != nil {
		s.logger.Info(msg,
			slog.Int64("article_id", a.ID),
			slog.String("owner", a.CreatedBy))
	}
}

func ownerID(p *profiles.Profile) string {
	if p == nil {
		return ""
	}
	return p.ID
}
