// Package admin serves the member administration panel: approvals,
// promotions, permission toggles and profile removal.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pubdesk/pubdesk/internal/authz"
	"github.com/pubdesk/pubdesk/internal/perm"
	"github.com/pubdesk/pubdesk/internal/profiles"
	"github.com/pubdesk/pubdesk/internal/shared"
	"github.com/pubdesk/pubdesk/internal/view"
)

// StatsRefresher queues a background recount of the article statistics.
type StatsRefresher interface {
	EnqueueStatsWarmup(ctx context.Context) error
}

// Handler serves the admin pages.
type Handler struct {
	logger  *slog.Logger
	service *profiles.Service
	views   *view.Engine
	csrf    *shared.CSRFManager
	stats   StatsRefresher
}

// NewHandler builds the admin handler.
func NewHandler(logger *slog.Logger, service *profiles.Service, views *view.Engine, csrf *shared.CSRFManager, stats StatsRefresher) *Handler {
	return &Handler{logger: logger, service: service, views: views, csrf: csrf, stats: stats}
}

// MountRoutes registers the admin routes behind the authorization gate.
func (h *Handler) MountRoutes(r chi.Router, gate *authz.Gate) {
	r.Group(func(r chi.Router) {
		r.Use(gate.Require(perm.ModuleAdmin, perm.CapAccess))
		r.Get("/users", h.listUsers)
		r.Post("/users/{id}/approve", h.approve)
		r.Post("/users/{id}/promote", h.promote)
		r.Post("/users/{id}/permissions", h.setPermission)
		r.Post("/users/{id}/delete", h.deleteProfile)
		r.Post("/stats/refresh", h.refreshStats)
	})
}

// permColumn is one capability checkbox column in the members table.
type permColumn struct {
	Path  string
	Label string
}

// columns lists the toggleable capabilities in display order.
var columns = []permColumn{
	{Path: "articles.access", Label: "Articles"},
	{Path: "articles.view_all", Label: "View all"},
	{Path: "articles.create", Label: "Create"},
	{Path: "articles.manage_others", Label: "Manage others"},
	{Path: "admin.access", Label: "Admin"},
}

type userRow struct {
	Profile   profiles.Profile
	Editable  bool
	Deletable bool
}

type usersPage struct {
	view.Page
	Rows    []userRow
	Columns []permColumn
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actor := authz.CurrentProfile(r.Context())

	people, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list profiles failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rows := make([]userRow, 0, len(people))
	for _, p := range people {
		adminTier := p.Role == profiles.RoleAdmin || p.Role == profiles.RoleSuperAdmin
		rows = append(rows, userRow{
			Profile:   p,
			Editable:  !adminTier && p.ID != actor.ID,
			Deletable: actor.Role == profiles.RoleSuperAdmin && p.ID != actor.ID,
		})
	}

	data := usersPage{
		Page:    h.page(r, "Members"),
		Rows:    rows,
		Columns: columns,
	}
	if err := h.views.Render(w, http.StatusOK, "admin_users", data); err != nil {
		h.logger.Error("render failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor := authz.CurrentProfile(r.Context())
	err := h.service.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	h.finish(w, r, err, "Member approved.")
}

func (h *Handler) promote(w http.ResponseWriter, r *http.Request) {
	actor := authz.CurrentProfile(r.Context())
	err := h.service.Promote(r.Context(), actor, chi.URLParam(r, "id"))
	h.finish(w, r, err, "Member promoted to administrator.")
}

func (h *Handler) setPermission(w http.ResponseWriter, r *http.Request) {
	actor := authz.CurrentProfile(r.Context())
	path := r.PostFormValue("path")
	value := r.PostFormValue("value") == "true"
	err := h.service.SetPermission(r.Context(), actor, chi.URLParam(r, "id"), path, value)
	h.finish(w, r, err, "Permissions updated.")
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	actor := authz.CurrentProfile(r.Context())
	err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	h.finish(w, r, err, "Profile deleted.")
}

func (h *Handler) refreshStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.flash(r, "error", "Statistics refresh is not available.")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}
	if err := h.stats.EnqueueStatsWarmup(r.Context()); err != nil {
		h.logger.Error("enqueue stats warmup failed", slog.String("error", err.Error()))
		h.flash(r, "error", "Could not queue the statistics refresh.")
	} else {
		h.flash(r, "info", "Statistics refresh queued.")
	}
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// finish translates service results into a flash and the usual redirect
// back to the members table.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, err error, success string) {
	switch {
	case err == nil:
		h.flash(r, "info", success)
	case errors.Is(err, profiles.ErrSelfChange):
		h.flash(r, "error", "You cannot change your own profile.")
	case errors.Is(err, profiles.ErrRoleLocked):
		h.flash(r, "error", "Administrator permissions are fixed.")
	case errors.Is(err, profiles.ErrNotPending):
		h.flash(r, "error", "That member is not awaiting approval.")
	case errors.Is(err, profiles.ErrForbidden):
		h.flash(r, "error", "Only the super admin may do that.")
	case errors.Is(err, profiles.ErrNotFound):
		h.flash(r, "error", "That profile no longer exists.")
	default:
		h.logger.Error("admin action failed", slog.String("error", err.Error()))
		h.flash(r, "error", "Something went wrong, try again.")
	}
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

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

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}
