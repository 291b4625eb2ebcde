// Package jwt 签发与校验可选的 Bearer Token，token 的 sub 即前端的 userId
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer 签发方
const Issuer = "chatrelay"

const (
	defaultExpiration = 24 * time.Hour
	clockSkew         = 30 * time.Second
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims 只携带用户标识与可选的显示名
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserID 用户 ID
func (c *Claims) UserID() string {
	return c.Subject
}

// JWT HS256 签发与校验
type JWT struct {
	secret     []byte
	expiration time.Duration
	parser     *jwt.Parser
}

// NewJWT expiration <= 0 时使用 24h
func NewJWT(secret string, expiration time.Duration) *JWT {
	if expiration <= 0 {
		expiration = defaultExpiration
	}
	return &JWT{
		secret:     []byte(secret),
		expiration: expiration,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// GenerateToken 签发 token
func (j *JWT) GenerateToken(userID, name string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := &Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// GetExpiration token 有效期
func (j *JWT) GetExpiration() time.Duration {
	return j.expiration
}

// ValidateToken 校验签名、签发方与有效期，sub 不能为空
func (j *JWT) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := j.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.UserID() == "":
		return nil, ErrInvalidToken
	}
	return claims, nil
}
