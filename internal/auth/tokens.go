package auth

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/id"
)

const (
	tokenIssuer   = "calendar-server"
	tokenAudience = "calendar-client"
)

// ErrTokenExpired is returned for a well-formed token past its expiry.
var ErrTokenExpired = errors.New("token expired")

// AccessClaims are the claims carried by an access token. v4.local
// tokens are encrypted, so clients cannot read them.
type AccessClaims struct {
	Expiration time.Time   `json:"exp"`
	NotBefore  time.Time   `json:"nbf"`
	IssuedAt   time.Time   `json:"iat"`
	UserID     string      `json:"user_id"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	Issuer     string      `json:"iss"`
	Subject    string      `json:"sub"`
	Audience   string      `json:"aud"`
	TokenID    string      `json:"jti"`
}

// TokenService issues and verifies PASETO v4.local access tokens.
type TokenService struct {
	now            func() time.Time
	key            paseto.V4SymmetricKey
	accessDuration time.Duration
}

// NewTokenService builds a token service from a hex-encoded 32 byte key.
func NewTokenService(keyHex string, accessDuration time.Duration) (*TokenService, error) {
	if err := checkKeyHex(keyHex); err != nil {
		return nil, err
	}
	raw, _ := hex.DecodeString(keyHex)

	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("create PASETO key: %w", err)
	}
	if accessDuration <= 0 {
		return nil, fmt.Errorf("access token duration must be positive, got %s", accessDuration)
	}

	return &TokenService{now: time.Now, key: key, accessDuration: accessDuration}, nil
}

// AccessDuration returns the access token lifetime.
func (s *TokenService) AccessDuration() time.Duration {
	return s.accessDuration
}

// GenerateAccessToken issues a token for user and returns it with its expiry.
func (s *TokenService) GenerateAccessToken(user *domain.User) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.accessDuration)

	jti, err := id.Generate(id.PrefixToken)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token ID: %w", err)
	}

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(user.ID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(expires)
	token.SetJti(jti)
	//nolint:errcheck // Set only fails for values that cannot be marshaled
	_ = token.Set("user_id", user.ID)
	//nolint:errcheck
	_ = token.Set("email", user.Email)
	//nolint:errcheck
	_ = token.Set("role", string(user.Role))

	return token.V4Encrypt(s.key, nil), expires, nil
}

// VerifyAccessToken decrypts and validates a token. Expired tokens return
// an error wrapping ErrTokenExpired.
func (s *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	now := s.now()

	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(now))

	token, err := parser.ParseV4Local(s.key, strings.TrimSpace(tokenString), nil)
	if err != nil {
		if exp, expErr := tokenExpiry(s.key, tokenString); expErr == nil && !now.Before(exp) {
			return nil, fmt.Errorf("%w at %s", ErrTokenExpired, exp.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("invalid token: missing user_id")
	}
	return &claims, nil
}

// tokenExpiry decrypts without time rules to tell an expired token from a
// forged one.
func tokenExpiry(key paseto.V4SymmetricKey, tokenString string) (time.Time, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	token, err := parser.ParseV4Local(key, strings.TrimSpace(tokenString), nil)
	if err != nil {
		return time.Time{}, err
	}
	return token.GetExpiration()
}
