// Package auth verifies and mints the HS256 JWTs that gate every chatlite
// connection. Access tokens authenticate WebSocket sessions; refresh tokens
// are only accepted where explicitly stated and are checked against the
// revocation list.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "type" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

const (
	AccessTokenExpiry  = 15 * time.Minute
	RefreshTokenExpiry = 7 * 24 * time.Hour
)

// Claims is the decoded, validated content of a chatlite token.
type Claims struct {
	UserID uuid.UUID
	Kind   string // KindAccess or KindRefresh
	JTI    string
	Expiry time.Time
}

// RevocationChecker reports whether a token ID has been revoked.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Verifier validates tokens signed with a shared HMAC secret.
type Verifier struct {
	secret  []byte
	revoked RevocationChecker
}

// NewVerifier creates a verifier. revoked may be nil, in which case refresh
// tokens are accepted without a revocation check.
func NewVerifier(secret string, revoked RevocationChecker) *Verifier {
	return &Verifier{secret: []byte(secret), revoked: revoked}
}

// Verify parses and validates a token of the expected kind.
func (v *Verifier) Verify(ctx context.Context, tokenString, kind string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	claims, err := parseClaims(mapClaims)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("expected %s token, got %s", kind, claims.Kind)
	}

	if claims.Kind == KindRefresh && v.revoked != nil {
		revoked, err := v.revoked.IsTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return nil, fmt.Errorf("revocation check: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("token has been revoked")
		}
	}

	return claims, nil
}

// VerifyAccess validates an access token.
func (v *Verifier) VerifyAccess(ctx context.Context, tokenString string) (*Claims, error) {
	return v.Verify(ctx, tokenString, KindAccess)
}

func parseClaims(mc jwt.MapClaims) (*Claims, error) {
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("missing sub claim")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid sub claim: %w", err)
	}

	kind, _ := mc["type"].(string)
	if kind != KindAccess && kind != KindRefresh {
		return nil, fmt.Errorf("unknown token type %q", kind)
	}

	jti, _ := mc["jti"].(string)
	if jti == "" {
		return nil, fmt.Errorf("missing jti claim")
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("missing exp claim")
	}

	return &Claims{
		UserID: userID,
		Kind:   kind,
		JTI:    jti,
		Expiry: exp.Time,
	}, nil
}

// GenerateToken mints a signed token for the given user. ttl defaults by
// kind when zero.
func GenerateToken(secret string, userID uuid.UUID, kind string, ttl time.Duration) (string, error) {
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("unknown token type %q", kind)
	}
	if ttl == 0 {
		if kind == KindAccess {
			ttl = AccessTokenExpiry
		} else {
			ttl = RefreshTokenExpiry
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"jti":  uuid.NewString(),
		"type": kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
