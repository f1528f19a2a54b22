package identity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pubdesk/pubdesk/internal/profiles"
	"github.com/pubdesk/pubdesk/internal/shared"
)

const stateSessionKey = "oidc_state"

// ProfileResolver maps an authenticated principal to its stored profile.
type ProfileResolver interface {
	Resolve(ctx context.Context, id, email, displayName string) (*profiles.Profile, error)
}

// Handler serves the sign-in and sign-out endpoints.
type Handler struct {
	logger        *slog.Logger
	flow          Flow
	resolver      ProfileResolver
	sessions      *shared.SessionManager
	repo          Repository
	allowedDomain string
}

// NewHandler builds the identity handler. allowedDomain, when non-empty,
// restricts sign-in to accounts of that email domain.
func NewHandler(logger *slog.Logger, flow Flow, resolver ProfileResolver, sessions *shared.SessionManager, repo Repository, allowedDomain string) *Handler {
	return &Handler{
		logger:        logger,
		flow:          flow,
		resolver:      resolver,
		sessions:      sessions,
		repo:          repo,
		allowedDomain: strings.ToLower(strings.TrimPrefix(allowedDomain, "@")),
	}
}

// MountRoutes registers the sign-in endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/oidc/start", h.start)
	r.Get("/oidc/callback", h.callback)
	r.Post("/logout", h.logout)
}

// start begins the authorization-code flow with a fresh anti-forgery state.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	state := uuid.NewString()
	sess.Set(stateSessionKey, state)
	http.Redirect(w, r, h.flow.AuthCodeURL(state), http.StatusFound)
}

// callback completes the flow: verify state, exchange the code, resolve the
// profile and bind the session. Every failure leaves the visitor signed out
// with an explanatory flash on the landing page.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	fail := func(message string) {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: message})
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
	}

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.logger.Warn("sign-in refused by provider", slog.String("error", errCode))
		fail("Sign-in was cancelled or refused by the identity provider.")
		return
	}

	wantState := sess.Get(stateSessionKey)
	sess.Delete(stateSessionKey)
	if wantState == "" || r.URL.Query().Get("state") != wantState {
		fail("Sign-in session expired, please try again.")
		return
	}

	principal, err := h.flow.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.Error("code exchange failed", slog.String("error", err.Error()))
		fail("Sign-in failed, please try again.")
		return
	}

	if !h.emailAllowed(principal.Email) {
		h.logger.Warn("sign-in rejected for email domain", slog.String("email", principal.Email))
		fail("Only " + h.allowedDomain + " accounts may sign in here.")
		return
	}

	// A store failure means no profile, which means no access.
	profile, err := h.resolver.Resolve(r.Context(), principal.Subject, principal.Email, principal.DisplayName)
	if err != nil {
		h.logger.Error("profile resolution failed", slog.String("error", err.Error()))
		fail("Your account could not be loaded, please try again later.")
		return
	}

	sess.SetUser(profile.ID)
	h.recordSession(r, sess.ID, profile.ID)

	h.logger.Info("signed in",
		slog.String("profile_id", profile.ID),
		slog.String("role", string(profile.Role)))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// logout drops both the session record and the live session.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("session record cleanup failed", slog.String("error", err.Error()))
		}
	}
	h.sessions.Destroy(sess)
	http.Redirect(w, r, "/welcome", http.StatusSeeOther)
}

func (h *Handler) emailAllowed(email string) bool {
	if h.allowedDomain == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(email), "@"+h.allowedDomain)
}

// recordSession is best effort: a missing audit row must not block sign-in.
func (h *Handler) recordSession(r *http.Request, sessionID, profileID string) {
	if h.repo == nil {
		return
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	expires := time.Now().UTC().Add(h.sessions.TTL())
	if err := h.repo.CreateSession(r.Context(), sessionID, profileID, expires, ip, r.UserAgent()); err != nil {
		h.logger.Warn("session record write failed", slog.String("error", err.Error()))
	}
}
