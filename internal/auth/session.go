// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Issuer signs and verifies identity tokens with an ed25519 key pair.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	// expire is the token lifetime; 0 means tokens carry no exp claim.
	expire time.Duration
	now    func() time.Time
}

// NewIssuer generates a fresh ed25519 key pair at runtime.
func NewIssuer(expire time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, expire: expire, now: time.Now}, nil
}

// NewIssuerFromFiles reads raw ed25519 private/public keys from disk.
func NewIssuerFromFiles(privatePath, publicPath string, expire time.Duration) (*Issuer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 key files have wrong sizes")
	}
	return &Issuer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		expire:     expire,
		now:        time.Now,
	}, nil
}

// CreateJWT signs a token with "sub" = uid and "nick" = nickname.
func (i *Issuer) CreateJWT(id models.Identity) (string, error) {
	claims := jwt.MapClaims{
		"sub":  id.UID.String(),
		"nick": id.Nickname,
		"iat":  i.now().Unix(),
	}
	if i.expire > 0 {
		claims["exp"] = i.now().Add(i.expire).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// AuthenticateJWT verifies a token string and returns the identity it carries.
func (i *Issuer) AuthenticateJWT(tokenString string) (models.Identity, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	sub, _ := claims["sub"].(string)
	uid, err := uuid.Parse(sub)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: missing or malformed sub", ErrInvalidToken)
	}
	nick, _ := claims["nick"].(string)
	return models.Identity{UID: uid, Nickname: nick}, nil
}
