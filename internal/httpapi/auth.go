package httpapi

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeDocRead  = "doc:read"
	ScopeDocWrite = "doc:write"

	tokenAudience = "campkeeper"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

type tokenClaims struct {
	CampaignID string   `json:"campaign_id"`
	Scopes     []string `json:"scopes"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) hasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// authorizeBearer validates the Authorization header against the hub secret
// and checks the campaign and scope claims. 401 for anything wrong with the
// token itself, 403 for a valid token lacking access.
func authorizeBearer(authHeader, secret, campaignID, requiredScope string) (*tokenClaims, *authError) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, &authError{status: 401, code: "unauthorized", message: "missing or invalid bearer token"}
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, &authError{status: 401, code: "unauthorized", message: "invalid token: " + err.Error()}
	}
	if claims.CampaignID == "" {
		return nil, &authError{status: 401, code: "unauthorized", message: "missing campaign_id claim"}
	}
	if campaignID != "" && claims.CampaignID != campaignID {
		return nil, &authError{status: 403, code: "forbidden", message: "campaign mismatch"}
	}
	if len(claims.Scopes) == 0 {
		return nil, &authError{status: 403, code: "forbidden", message: "no scopes granted"}
	}
	if requiredScope != "" && !claims.hasScope(requiredScope) {
		return nil, &authError{status: 403, code: "forbidden", message: "missing required scope: " + requiredScope}
	}
	return claims, nil
}

// IssueToken mints a signed bearer token for one campaign. Used by the hub's
// token subcommand and by tests.
func IssueToken(secret, campaignID string, scopes []string, ttl time.Duration, now time.Time) (string, error) {
	claims := &tokenClaims{
		CampaignID: campaignID,
		Scopes:     scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
