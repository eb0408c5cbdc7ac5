package teams

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Stalker400n/psi1-sub000/internal/store"
)

const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

type TokenClaims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// authenticate resolves the caller into the X-User-Id / X-User-Role headers.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.jwtSecret) > 0 {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid Authorization header")
				return
			}

			claims := &TokenClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return s.jwtSecret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid || claims.TokenType != "access" || claims.UserID == "" {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			r.Header.Set("X-User-Id", claims.UserID)
			r.Header.Set("X-User-Role", claims.Role)
		}

		if r.Header.Get("X-User-Id") == "" {
			writeError(w, http.StatusUnauthorized, "missing user context")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// privileged reports whether the caller may drive the team's playback and
// reorder or remove songs.
func privileged(r *http.Request, team *store.Team) bool {
	switch strings.ToLower(r.Header.Get("X-User-Role")) {
	case RoleOwner, RoleModerator:
		return true
	}
	return team != nil && callerID(r) == team.CreatedBy
}
