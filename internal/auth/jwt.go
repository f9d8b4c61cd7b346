package auth

import (
	"context"
	"time"

	"LanChat/internal/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Verifier turns a bearer token into an Identity. Signature and expiry are always checked.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type claims struct {
	UserID    string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperror.ErrMissingToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, apperror.Wrap(apperror.CodeUnauthenticated, "invalid or expired token", err)
	}
	if c.UserID == "" || c.CompanyID == "" {
		return Identity{}, apperror.ErrInvalidToken
	}

	role := c.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{
		UserID:    c.UserID,
		Username:  c.Username,
		Email:     c.Email,
		CompanyID: c.CompanyID,
		Role:      role,
	}, nil
}

// Issue signs a token for id. Token issuance belongs to the identity service;
// this exists for tooling and tests that need a token the verifier accepts.
func (v *JWTVerifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := v.now()
	c := claims{
		UserID:    id.UserID,
		Username:  id.Username,
		Email:     id.Email,
		Role:      id.Role,
		CompanyID: id.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "auth.Issue.sign")
	}
	return signed, nil
}
