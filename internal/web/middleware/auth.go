package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/sessions"

	"github.com/JonMunkholm/TruckRewards/internal/config"
	"github.com/JonMunkholm/TruckRewards/internal/core"
)

// Session value keys written by the login layer.
const (
	SessionKeyUserID   = "user_id"
	SessionKeyUsername = "username"
	SessionKeyRole     = "role"
)

// User is the signed-in account read from the session cookie.
type User struct {
	ID       int64
	Username string
	Role     core.Role
}

type userKey struct{}

// ContextWithUser stores u in ctx.
func ContextWithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the user stored by Auth.LoadUser.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// ErrorFunc writes an error response. The web package supplies one that maps
// errors to user messages.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error, status int)

// Auth reads the actor from a gorilla/sessions cookie and guards routes by role.
type Auth struct {
	store   sessions.Store
	name    string
	onError ErrorFunc
}

// NewCookieStore builds the cookie store the login layer and this service share.
func NewCookieStore(cfg config.SessionConfig) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// NewAuth creates session auth over store using the named cookie.
func NewAuth(store sessions.Store, name string, onError ErrorFunc) *Auth {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error, status int) {
			http.Error(w, err.Error(), status)
		}
	}
	return &Auth{store: store, name: name, onError: onError}
}

// LoadUser puts the session user, if any, into the request context.
// Missing or unreadable cookies leave the request anonymous.
func (a *Auth) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := a.store.Get(r, a.name)
		if err != nil {
			slog.Debug("auth: unreadable session cookie",
				"path", r.URL.Path,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		if u, ok := userFromSession(session); ok {
			r = r.WithContext(ContextWithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects anonymous requests with 401 and other roles with 403.
func (a *Auth) RequireRole(roles ...core.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				a.onError(w, r, core.ErrUnauthenticated, http.StatusUnauthorized)
				return
			}
			if !slices.Contains(roles, u.Role) {
				slog.Warn("auth: role not permitted",
					"path", r.URL.Path,
					"method", r.Method,
					"user_id", u.ID,
					"role", u.Role,
				)
				a.onError(w, r, core.ErrForbidden, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userFromSession(s *sessions.Session) (User, bool) {
	id, ok := toInt64(s.Values[SessionKeyUserID])
	if !ok || id <= 0 {
		return User{}, false
	}
	role, _ := s.Values[SessionKeyRole].(string)
	if role == "" {
		return User{}, false
	}
	username, _ := s.Values[SessionKeyUsername].(string)
	return User{ID: id, Username: username, Role: core.Role(role)}, true
}

// toInt64 accepts the integer shapes gob and JSON serializers produce.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
