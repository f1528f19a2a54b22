package articles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pubdesk/pubdesk/internal/authz"
	"github.com/pubdesk/pubdesk/internal/perm"
	"github.com/pubdesk/pubdesk/internal/shared"
	"github.com/pubdesk/pubdesk/internal/view"
	"github.com/pubdesk/pubdesk/internal/watch"
)

// printMinRows pads the printable table so short catalogues still produce a
// usable handwriting area.
const printMinRows = 5

// Streamer hands out per-request event subscriptions.
type Streamer interface {
	Subscribe(ctx context.Context) (<-chan watch.Event, error)
}

// Handler serves the article pages.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	views    *view.Engine
	csrf     *shared.CSRFManager
	streamer Streamer
}

// NewHandler builds the article handler.
func NewHandler(logger *slog.Logger, service *Service, views *view.Engine, csrf *shared.CSRFManager, streamer Streamer) *Handler {
	return &Handler{logger: logger, service: service, views: views, csrf: csrf, streamer: streamer}
}

// MountRoutes registers the article routes behind the authorization gate.
func (h *Handler) MountRoutes(r chi.Router, gate *authz.Gate) {
	r.Group(func(r chi.Router) {
		r.Use(gate.Require(perm.ModuleArticles, perm.CapAccess))
		r.Get("/", h.list)
		r.Get("/print", h.print)
		r.Get("/stream", h.stream)
		r.Get("/{id}/edit", h.editForm)
		r.Post("/{id}", h.update)
		r.Post("/{id}/delete", h.delete)
	})
	r.Group(func(r chi.Router) {
		r.Use(gate.Require(perm.ModuleArticles, perm.CapCreate))
		r.Get("/new", h.newForm)
		r.Post("/", h.create)
	})
}

type articleRow struct {
	Article   Article
	CanManage bool
}

type listPage struct {
	view.Page
	Rows      []articleRow
	Query     string
	CanCreate bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	profile := authz.CurrentProfile(r.Context())
	query := r.URL.Query().Get("q")

	items, err := h.service.List(r.Context(), profile, query)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	rows := make([]articleRow, 0, len(items))
	for i := range items {
		rows = append(rows, articleRow{
			Article:   items[i],
			CanManage: CanManage(profile, &items[i]),
		})
	}

	data := listPage{
		Page:      h.page(r, "Articles"),
		Rows:      rows,
		Query:     query,
		CanCreate: profile.Can(perm.ModuleArticles, perm.CapCreate),
	}
	h.render(w, r, http.StatusOK, "articles_list", data)
}

type formPage struct {
	view.Page
	Form       ArticleForm
	Categories []string
	Action     string
	IsEdit     bool
	FormError  string
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	data := formPage{
		Page:       h.page(r, "New article"),
		Form:       ArticleForm{Category: Categories[0]},
		Categories: Categories,
		Action:     "/articles",
	}
	h.render(w, r, http.StatusOK, "articles_form", data)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	profile := authz.CurrentProfile(r.Context())
	form := FormFromRequest(r)

	if _, err := h.service.Create(r.Context(), profile, form); err != nil {
		h.renderForm(w, r, form, "/articles", false, err)
		return
	}

	h.flash(r, "info", "Article added.")
	http.Redirect(w, r, "/articles", http.StatusSeeOther)
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	profile := authz.CurrentProfile(r.Context())
	id, err := articleID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	a, err := h.service.Get(r.Context(), profile, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if !CanManage(profile, a) {
		h.renderError(w, r, ErrForbidden)
		return
	}

	data := formPage{
		Page:       h.page(r, "Edit article"),
		Form:       ArticleForm{Title: a.Title, Authors: a.Authors, Venue: a.Venue, Category: a.Category},
		Categories: Categories,
		Action:     fmt.Sprintf("/articles/%d", a.ID),
		IsEdit:     true,
	}
	h.render(w, r, http.StatusOK, "articles_form", data)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	profile := authz.CurrentProfile(r.Context())
	id, err := articleID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	form := FormFromRequest(r)
	if _, err := h.service.Update(r.Context(), profile, id, form); err != nil {
		h.renderForm(w, r, form, fmt.Sprintf("/articles/%d", id), true, err)
		return
	}

	h.flash(r, "info", "Article updated.")
	http.Redirect(w, r, "/articles", http.StatusSeeOther)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	profile := authz.CurrentProfile(r.Context())
	id, err := articleID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := h.service.Delete(r.Context(), profile, id); err != nil {
		h.renderError(w, r, err)
		return
	}

	h.flash(r, "info", "Article deleted.")
	http.Redirect(w, r, "/articles", http.StatusSeeOther)
}

type printPage struct {
	view.Page
	Articles []Article
	PadRows  int
	Today    time.Time
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	profile := authz.CurrentProfile(r.Context())

	items, err := h.service.List(r.Context(), profile, "")
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	pad := printMinRows - len(items)
	if pad < 0 {
		pad = 0
	}
	page := h.page(r, "Print articles")
	page.HideChrome = true
	data := printPage{
		Page:     page,
		Articles: items,
		PadRows:  pad,
		Today:    time.Now(),
	}
	h.render(w, r, http.StatusOK, "articles_print", data)
}

// stream pushes change events as server-sent events for as long as the
// request lives. Events outside the viewer's scope are filtered out.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	profile := authz.CurrentProfile(r.Context())
	scope := ScopeFor(profile, "")

	// The server write deadline is sized for page loads, not a connection
	// that stays open for the whole visit.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("clear stream write deadline", slog.String("error", err.Error()))
	}

	events, err := h.streamer.Subscribe(r.Context())
	if err != nil {
		h.logger.Error("event subscription failed", slog.String("error", err.Error()))
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The list page already rendered the snapshot; this tells the client
	// the delta feed is live.
	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if !scope.All && ev.Owner != scope.Owner {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// page assembles the fields shared by every template.
func (h *Handler) page(r *http.Request, title string) view.Page {
	p := view.Page{Title: title, Profile: authz.CurrentProfile(r.Context())}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		p.Flash = sess.PopFlash()
		if token, err := h.csrf.EnsureToken(r.Context(), sess); err == nil {
			p.CSRFToken = token
		}
	}
	return p
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	if err := h.views.Render(w, status, page, data); err != nil {
		h.logger.Error("render failed", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// renderForm redisplays the form with the submitted values and a readable
// error instead of losing the visitor's input.
func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, form ArticleForm, action string, isEdit bool, err error) {
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound):
		h.renderError(w, r, err)
		return
	}

	data := formPage{
		Page:       h.page(r, "Article"),
		Form:       form,
		Categories: Categories,
		Action:     action,
		IsEdit:     isEdit,
		FormError:  "Please fill in every field and pick a valid category.",
	}
	h.render(w, r, http.StatusUnprocessableEntity, "articles_form", data)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, ErrForbidden):
		h.flash(r, "error", "You may not manage that article.")
		http.Redirect(w, r, "/articles", http.StatusSeeOther)
	default:
		h.logger.Error("article request failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func articleID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
