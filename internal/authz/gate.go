// Package authz gates HTTP routes on the signed-in profile's role and
// capability grants.
package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pubdesk/pubdesk/internal/perm"
	"github.com/pubdesk/pubdesk/internal/profiles"
	"github.com/pubdesk/pubdesk/internal/shared"
)

type profileContextKey struct{}

// ContextWithProfile stores the admitted profile for downstream handlers.
func ContextWithProfile(ctx context.Context, p *profiles.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, p)
}

// CurrentProfile returns the admitted profile, nil on ungated routes.
func CurrentProfile(ctx context.Context) *profiles.Profile {
	p, _ := ctx.Value(profileContextKey{}).(*profiles.Profile)
	return p
}

// ProfileStore loads profiles for admission decisions.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*profiles.Profile, error)
}

// Gate produces middleware that admits or turns away each request.
type Gate struct {
	Logger    *slog.Logger
	Profiles  ProfileStore
	Sessions  *shared.SessionManager
	LoginPath string
}

// Authenticate resolves the session user into a profile and stores it in the
// request context without imposing any capability requirement. Anonymous
// visitors are redirected to the landing page.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, ok := g.admitSession(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithProfile(r.Context(), profile)))
	})
}

// Require admits only profiles holding the named capability. Pending
// profiles and missing grants bounce to the dashboard with a notice.
func (g *Gate) Require(m perm.Module, c perm.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, ok := g.admitSession(w, r)
			if !ok {
				return
			}

			if profile.Role == profiles.RolePending {
				g.flash(r, "Your account is awaiting approval.")
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			if !profile.Can(m, c) {
				g.flash(r, "You do not have access to that area.")
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithProfile(r.Context(), profile)))
		})
	}
}

// admitSession turns the session user into a live profile. A vanished
// profile invalidates the session on the spot; a store failure is treated
// the same as no profile at all.
func (g *Gate) admitSession(w http.ResponseWriter, r *http.Request) (*profiles.Profile, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		http.Redirect(w, r, g.LoginPath, http.StatusSeeOther)
		return nil, false
	}

	profile, err := g.Profiles.Get(r.Context(), sess.User())
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			g.Sessions.Destroy(sess)
		} else {
			g.Logger.Error("profile lookup failed", slog.String("error", err.Error()))
		}
		http.Redirect(w, r, g.LoginPath, http.StatusSeeOther)
		return nil, false
	}
	return profile, true
}

func (g *Gate) flash(r *http.Request, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: message})
	}
}
