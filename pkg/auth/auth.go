// Package auth issues and verifies the bearer tokens that guard the HTTP API.
// Clients trade a shared API key for a signed JWT.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "webflow-engine"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
	ErrNoKey        = errors.New("no api key configured")
)

type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

type JWT struct {
	secret  []byte
	expire  time.Duration
	keyHash string
	now     func() time.Time
}

// NewJWT returns a token issuer. expireSeconds <= 0 falls back to one day;
// keyHash is the bcrypt hash accepted by Exchange.
func NewJWT(secret string, expireSeconds int, keyHash string) *JWT {
	expire := time.Duration(expireSeconds) * time.Second
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	return &JWT{secret: []byte(secret), expire: expire, keyHash: keyHash, now: time.Now}
}

func (j *JWT) GenerateToken(client string) (string, error) {
	now := j.now()
	claims := Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   client,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expire)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWT) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Exchange checks key against the configured hash and issues a token for
// client.
func (j *JWT) Exchange(client, key string) (string, error) {
	if j.keyHash == "" {
		return "", ErrNoKey
	}
	if !CheckKey(key, j.keyHash) {
		return "", ErrInvalidKey
	}
	return j.GenerateToken(client)
}

func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
