// Package token inspects bearer credentials issued by the recipe service.
//
// Tokens are read without verifying their signature: the service issues
// them over TLS and the agent trusts the embedded claims as given.
// Expiry and identity decisions downstream depend on the claims being
// honest.
package token

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alexjbarnes/recipe-sync/internal/apperrors"
)

// refreshWindow is how much remaining lifetime triggers a refresh.
const refreshWindow = time.Hour

// Token is the parsed view of a three-segment bearer credential.
type Token struct {
	// Raw is the credential string exactly as issued.
	Raw string

	// UserID is the identity claim, normalized to a string whether the
	// server sent it as an integer or a string.
	UserID string

	// Email is the optional email claim, empty when absent.
	Email string

	// IssuedAt is the iat claim in epoch seconds, 0 when absent.
	IssuedAt int64

	// ExpiresAt is the exp claim in epoch seconds. Always present;
	// Parse rejects tokens without it.
	ExpiresAt int64
}

// Parse decodes the claims segment of a bearer token without verifying
// its signature. It fails when the token does not have three segments,
// the middle segment is not valid base64, or the decoded claims are not
// a JSON object carrying an expiry.
func Parse(raw string) (*Token, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: claims are not an object", apperrors.ErrInvalidToken)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry claim", apperrors.ErrInvalidToken)
	}

	t := &Token{
		Raw:       raw,
		UserID:    normalizeUserID(claims["uid"]),
		ExpiresAt: exp.Unix(),
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t.IssuedAt = iat.Unix()
	}

	if email, ok := claims["email"].(string); ok {
		t.Email = email
	}

	return t, nil
}

// normalizeUserID converts an integer or string identity claim to its
// string form. Unknown types yield an empty string.
func normalizeUserID(claim any) string {
	switch uid := claim.(type) {
	case string:
		return uid
	case float64:
		return strconv.FormatInt(int64(uid), 10)
	case int64:
		return strconv.FormatInt(uid, 10)
	}

	return ""
}

// IsExpired reports whether the token has expired as of now.
func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt <= now.Unix()
}

// TimeUntilExpiry returns the remaining lifetime. Negative for tokens
// that are already expired.
func (t *Token) TimeUntilExpiry(now time.Time) time.Duration {
	return time.Unix(t.ExpiresAt, 0).Sub(now)
}

// ShouldRefresh reports whether the remaining lifetime is under the
// refresh window (one hour).
func (t *Token) ShouldRefresh(now time.Time) bool {
	return t.TimeUntilExpiry(now) < refreshWindow
}
