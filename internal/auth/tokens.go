// Package auth issues and verifies the bearer tokens of the API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// TokenPair is returned by login and refresh.
type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue creates an access and a refresh token for userID.
func (i *Issuer) Issue(userID uuid.UUID) (TokenPair, error) {
	now := i.now()
	access, accessExp, err := i.sign(userID, AccessToken, now, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := i.sign(userID, RefreshToken, now, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh, AccessExpiresAt: accessExp, RefreshExpiresAt: refreshExp}, nil
}

func (i *Issuer) sign(userID uuid.UUID, typ TokenType, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"typ": string(typ),
		"exp": exp.Unix(),
		"iat": now.Unix(),
		"jti": uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

// Parse verifies tokenString and returns its subject. The token must be of the expected type.
func (i *Issuer) Parse(tokenString string, expected TokenType) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if typ, _ := claims["typ"].(string); typ != string(expected) {
		return uuid.Nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, expected)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return userID, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (i *Issuer) Refresh(refreshToken string) (uuid.UUID, TokenPair, error) {
	userID, err := i.Parse(refreshToken, RefreshToken)
	if err != nil {
		return uuid.Nil, TokenPair{}, err
	}
	pair, err := i.Issue(userID)
	return userID, pair, err
}
