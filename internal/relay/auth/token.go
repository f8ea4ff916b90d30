// Package auth issues and verifies the signed session tokens handed out by
// the pairing service. A token is an HS256 JWT; the full token string is
// also the primary key of the sessions table, so signature and expiry are
// checked offline while revocation stays a row lookup.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pocketdesk/pocketdesk/internal/common"
)

// Claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	DeviceID string `json:"did"`
}

// GenerateToken signs a session token for the (user, device) pair.
func GenerateToken(userID, deviceID string, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		UserID:   userID,
		DeviceID: deviceID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and expiry and returns the claims.
// Expired tokens map to common.ErrSessionExpired, everything else invalid
// maps to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrSessionExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
