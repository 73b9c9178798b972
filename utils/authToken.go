package utils

import (
	"time"

	"github.com/o1egl/paseto"
	"github.com/pkg/errors"
)

const AccessTokenExpiry = 12 * time.Hour

var ErrTokenExpired = errors.New("token expired")

// TokenClaims identifies the acting user. The role is informational only;
// authorization always reloads the user.
type TokenClaims struct {
	UserID int64     `json:"userId"`
	Role   string    `json:"role"`
	Expiry time.Time `json:"expiry"`
}

// TokenMaker issues and checks PASETO v2 local tokens.
type TokenMaker struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenMaker requires a 32 byte symmetric key.
func NewTokenMaker(symmetricKey string) (*TokenMaker, error) {
	if len(symmetricKey) != 32 {
		return nil, errors.Errorf("SYMMETRIC_KEY must be 32 bytes long, got %d", len(symmetricKey))
	}
	return &TokenMaker{key: []byte(symmetricKey), expiry: AccessTokenExpiry, now: time.Now}, nil
}

func (m *TokenMaker) Generate(userID int64, role string) (string, error) {
	claims := TokenClaims{
		UserID: userID,
		Role:   role,
		Expiry: m.now().Add(m.expiry),
	}
	token, err := paseto.NewV2().Encrypt(m.key, claims, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate token")
	}
	return token, nil
}

func (m *TokenMaker) Validate(token string) (*TokenClaims, error) {
	var claims TokenClaims
	if err := paseto.NewV2().Decrypt(token, m.key, &claims, nil); err != nil {
		return nil, errors.Wrap(err, "failed to decrypt token")
	}
	if m.now().After(claims.Expiry) {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}
