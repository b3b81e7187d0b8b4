package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the console shows about a login token. The signature is
// not checked here; the admin API does that on every request.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Inspect decodes a token's claims for display.
func Inspect(token string) (Claims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("decode token: %w", err)
	}
	claims := Claims{Extra: map[string]any{}}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.Issuer, _ = mapClaims.GetIssuer()
	if audience, err := mapClaims.GetAudience(); err == nil {
		claims.Audience = audience
	}
	if issued, err := mapClaims.GetIssuedAt(); err == nil && issued != nil {
		claims.IssuedAt = issued.Time
	}
	if expires, err := mapClaims.GetExpirationTime(); err == nil && expires != nil {
		claims.ExpiresAt = expires.Time
	}
	for key, value := range mapClaims {
		switch key {
		case "sub", "iss", "aud", "iat", "exp":
			continue
		}
		claims.Extra[key] = value
	}
	return claims, nil
}
