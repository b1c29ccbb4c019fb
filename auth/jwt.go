package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pleader-ai/pleader-backend/middleware"
	"github.com/pleader-ai/pleader-backend/services"
)

// Claims is the token payload. UserID identifies the document owner.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// JWTConfig holds configuration for JWTValidator
type JWTConfig struct {
	Secret string
	// Issuer, when set, must match the iss claim
	Issuer string
	// Leeway tolerates clock skew on exp/nbf/iat
	Leeway time.Duration
}

// JWTValidator validates HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

var _ middleware.TokenValidator = (*JWTValidator)(nil)

// NewJWTValidator creates a validator. The secret must not be empty.
func NewJWTValidator(config JWTConfig) (*JWTValidator, error) {
	if strings.TrimSpace(config.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}

	return &JWTValidator{
		secret: []byte(config.Secret),
		issuer: config.Issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

// ValidateToken verifies the signature, expiry and issuer and returns the
// request claims
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*middleware.Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.ErrTokenExpired
		}
		return nil, services.WrapError(services.ErrorTypeUnauthorized, "invalid authentication token", err)
	}
	if !token.Valid {
		return nil, services.ErrInvalidToken
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return nil, services.WrapError(services.ErrorTypeUnauthorized, "invalid authentication token", errors.New("user_id claim missing"))
	}

	parsed := &middleware.Claims{
		UserID: userID,
		Email:  claims.Email,
		Iss:    claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		parsed.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		parsed.Iat = claims.IssuedAt.Unix()
	}
	return parsed, nil
}

// IssueToken signs an HS256 token for userID that expires after ttl.
// It backs the operator CLI; the API itself never issues tokens.
func IssueToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret is required")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
