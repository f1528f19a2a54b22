package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pubdesk/pubdesk/internal/admin"
	"github.com/pubdesk/pubdesk/internal/articles"
	"github.com/pubdesk/pubdesk/internal/authz"
	"github.com/pubdesk/pubdesk/internal/identity"
	"github.com/pubdesk/pubdesk/internal/observability"
	"github.com/pubdesk/pubdesk/internal/platform/httpx"
	"github.com/pubdesk/pubdesk/internal/shared"
	"github.com/pubdesk/pubdesk/internal/view"
	"github.com/pubdesk/pubdesk/jobs"
	"github.com/pubdesk/pubdesk/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Templates       *view.Engine
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	Gate            *authz.Gate
	IdentityHandler *identity.Handler
	ArticlesHandler *articles.Handler
	AdminHandler    *admin.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with PubDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Landing page for signed-out visitors.
	r.Get("/welcome", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess != nil && sess.User() != "" {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		data := view.Page{Title: "Welcome"}
		if sess != nil {
			data.Flash = sess.PopFlash()
		}
		if err := params.Templates.Render(w, http.StatusOK, "welcome", data); err != nil {
			params.Logger.Error("render welcome", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	// Dashboard. The gate loads the profile so the page can show role and
	// module tiles; pending members land here too.
	r.Group(func(r chi.Router) {
		r.Use(params.Gate.Authenticate)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			data := view.Page{Title: "Home", Profile: authz.CurrentProfile(r.Context())}
			if sess != nil {
				data.Flash = sess.PopFlash()
				if token, err := params.CSRFManager.EnsureToken(r.Context(), sess); err == nil {
					data.CSRFToken = token
				}
			}
			if err := params.Templates.Render(w, http.StatusOK, "home", data); err != nil {
				params.Logger.Error("render home", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		})
	})

	r.Route("/auth", params.IdentityHandler.MountRoutes)
	r.Route("/articles", func(r chi.Router) {
		params.ArticlesHandler.MountRoutes(r, params.Gate)
	})
	r.Route("/admin", func(r chi.Router) {
		params.AdminHandler.MountRoutes(r, params.Gate)
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
