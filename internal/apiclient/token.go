package apiclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the bearer pair issued by the forms API.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// CredentialStore gives the client access to one session's credentials.
type CredentialStore interface {
	Credentials(ctx context.Context) (Credentials, error)
	SaveAccess(ctx context.Context, access string) error
}

// Identity is the user information carried in an access token.
type Identity struct {
	UserID    string
	Username  string
	Roles     []string
	LastLogin string
	ExpiresAt time.Time
	Claims    map[string]any
}

// DecodeClaims reads the identity from an access token without verifying
// its signature. The forms API is the only party that verifies tokens.
func DecodeClaims(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("apiclient: decoding token: %w", err)
	}

	id := Identity{
		UserID:    claimString(claims["user_id"]),
		Username:  claimString(claims["username"]),
		Roles:     claimRoles(claims["roles"]),
		LastLogin: claimString(claims["last_login"]),
		Claims:    claims,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// Expired reports whether the token expires within leeway of now. Tokens
// that cannot be decoded, or carry no exp claim, count as expired.
func Expired(token string, now time.Time, leeway time.Duration) bool {
	id, err := DecodeClaims(token)
	if err != nil || id.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(leeway).Before(id.ExpiresAt)
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// claimRoles accepts either a list of role names or a single name.
func claimRoles(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{strings.ToLower(t)}
	case []any:
		roles := make([]string, 0, len(t))
		for _, r := range t {
			if s, ok := r.(string); ok && s != "" {
				roles = append(roles, strings.ToLower(s))
			}
		}
		return roles
	}
	return nil
}
