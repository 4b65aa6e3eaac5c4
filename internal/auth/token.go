package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTokenTTL = 20 * 24 * time.Hour

var (
	ErrMissingCredential   = errors.New("missing bearer credential")
	ErrMalformedCredential = errors.New("malformed bearer credential")
	ErrTokenMalformed      = errors.New("token is malformed")
	ErrTokenSignature      = errors.New("token signature is invalid")
	ErrTokenExpired        = errors.New("token is expired")
	ErrTokenClaims         = errors.New("token claims are invalid")
)

// PurposeEmailVerification marks tokens that may only confirm an email address.
const PurposeEmailVerification = "email_verification"

type Claims struct {
	ID      string `json:"id"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens carrying a user id. Session
// tokens have no purpose claim; verification link tokens are accepted only
// by VerifyEmailToken.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (tm *TokenManager) Issue(userID uuid.UUID) (string, error) {
	return tm.issue(userID, "")
}

// IssueVerification signs the token embedded in the email verification link.
func (tm *TokenManager) IssueVerification(userID uuid.UUID) (string, error) {
	return tm.issue(userID, PurposeEmailVerification)
}

func (tm *TokenManager) issue(userID uuid.UUID, purpose string) (string, error) {
	now := tm.now()
	claims := Claims{
		ID:      userID.String(),
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

// Verify checks a session token's signature and expiry and returns the
// embedded user id.
func (tm *TokenManager) Verify(tokenString string) (uuid.UUID, error) {
	return tm.verify(tokenString, "")
}

// VerifyEmailToken accepts only tokens issued by IssueVerification.
func (tm *TokenManager) VerifyEmailToken(tokenString string) (uuid.UUID, error) {
	return tm.verify(tokenString, PurposeEmailVerification)
}

func (tm *TokenManager) verify(tokenString, purpose string) (uuid.UUID, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return uuid.Nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return uuid.Nil, ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return uuid.Nil, ErrTokenExpired
		default:
			return uuid.Nil, ErrTokenClaims
		}
	}

	if claims.Purpose != purpose {
		return uuid.Nil, ErrTokenClaims
	}
	userID, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, ErrTokenClaims
	}
	return userID, nil
}

// ExtractBearer returns the credential of an "Authorization: Bearer <token>" header.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedCredential
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, " ") {
		return "", ErrMalformedCredential
	}
	return token, nil
}
