package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmehdipour/clinic-crm/internal/model"
)

// Claims is the session token payload. The subject is the login.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Dataset string `json:"dataset"`
	Picture string `json:"picture,omitempty"`
	Address string `json:"address,omitempty"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Sessions issues and validates HS256 session tokens. There is no server-side
// state: a token is valid until it expires.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a token for id and returns it with its expiry.
func (s *Sessions) Issue(id model.Identity) (string, time.Time, error) {
	iat := s.now().Truncate(time.Second)
	exp := iat.Add(s.ttl)
	claims := Claims{
		Name:    id.Name,
		Dataset: id.Dataset,
		Picture: id.Avatar,
		Address: id.Address,
		Role:    id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, exp, nil
}

// Parse checks the signature and expiry of token and returns its identity.
func (s *Sessions) Parse(token string) (*model.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return &model.Identity{
		ID:      claims.Subject,
		Name:    claims.Name,
		Dataset: claims.Dataset,
		Avatar:  claims.Picture,
		Address: claims.Address,
		Role:    claims.Role,
	}, nil
}
