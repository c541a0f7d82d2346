package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the signed-in portal user.
type Principal struct {
	Username string
	Role     string
}

// Claims are the portal JWT claims. The same token is forwarded upstream
// as the bearer credential.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Auth validates the session JWT from the Authorization header or the
// access_token cookie. Browser navigation without a valid token redirects
// to the login page; API calls get a 401 JSON body instead.
func Auth(secret []byte, loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				reject(w, r, loginURL, "missing credentials")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				reject(w, r, loginURL, "invalid token")
				return
			}

			principal := Principal{Username: claims.Username, Role: claims.Role}
			if principal.Username == "" {
				principal.Username = claims.Subject
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			ctx = spaapi.WithToken(ctx, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPrincipal attaches a user to the context. Handler tests use it to
// skip the JWT round trip.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated user, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// RequireRole gates a subtree to the given roles. Runs after Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				writeJSONError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// reject answers an auth failure in the shape the caller expects: a
// redirect for page loads, JSON for everything else.
func reject(w http.ResponseWriter, r *http.Request, loginURL, msg string) {
	if wantsHTML(r) {
		http.Redirect(w, r, loginURL, http.StatusFound)
		return
	}
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"msg":%q}`, msg)
}
