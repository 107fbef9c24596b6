package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Resume tokens let a dropped connection re-attach to its player within
// the disconnect grace window.
const (
	ResumeTTL = 2 * time.Minute

	tokenIssuer = "slither-world"
)

// Claims binds a token to one player in one world.
type Claims struct {
	Identity string `json:"identity"`
	WorldID  string `json:"world_id"`
	jwt.RegisteredClaims
}

// signingKey reads NETCODE_JWT_SECRET, falling back to a fixed dev key
// so local runs work without setup.
func signingKey() []byte {
	if s := os.Getenv("NETCODE_JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("slither-world-dev-secret-change-in-production")
}

// NewResumeToken issues a signed token for the given player identity.
// Each token carries a random jti so a rotation always produces a new
// string even within the same second.
func NewResumeToken(identity, worldID string) (string, error) {
	var nonce [8]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{
		Identity: identity,
		WorldID:  worldID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   identity,
			ID:        hex.EncodeToString(nonce[:]),
			ExpiresAt: jwt.NewNumericDate(now.Add(ResumeTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey())
}

// VerifyResumeToken checks signature, algorithm and expiry and returns
// the bound claims.
func VerifyResumeToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return signingKey(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("resume token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("resume token: invalid claims")
	}
	return claims, nil
}
