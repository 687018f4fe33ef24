package credentials

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rendis/actiondesk/pkg/schema"
)

// StateTTL bounds how long a consent link stays usable.
const StateTTL = 15 * time.Minute

const stateIssuer = "actiondesk"

// JWTStateSigner signs the OAuth state parameter as an HS256 JWT whose
// subject is the user id.
type JWTStateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTStateSigner creates a signer. A zero ttl uses StateTTL.
func NewJWTStateSigner(secret string, ttl time.Duration) (*JWTStateSigner, error) {
	if len(secret) < 16 {
		return nil, schema.NewError(schema.ErrCodeValidation, "state secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = StateTTL
	}
	return &JWTStateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the clock, for tests.
func (s *JWTStateSigner) WithClock(now func() time.Time) *JWTStateSigner {
	s.now = now
	return s
}

// Sign returns a state token for userID.
func (s *JWTStateSigner) Sign(userID string) (string, error) {
	if userID == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "state needs a user id")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    stateIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the signature and expiry and returns the user id.
func (s *JWTStateSigner) Verify(state string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(stateIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		msg := "invalid state"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "state expired"
		}
		return "", schema.NewError(schema.ErrCodeValidation, msg).WithCause(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "invalid state")
	}
	return claims.Subject, nil
}
