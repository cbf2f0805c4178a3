// Package auth issues and checks manage tokens. A manage token is handed to
// the uploader once and lets its holder delete the file or extend its TTL.
// It names the file and nothing about who uploaded it.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

const manageAudience = "zkshare-manage"

// Claims carries the standard claims plus the file the token manages.
type Claims struct {
	jwt.RegisteredClaims
	FileID string `json:"fid"`
}

func GenerateManageToken(fileID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	if fileID == "" {
		return "", common.NewValidationError("fileId", "must not be empty")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{manageAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		FileID: fileID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// FileIDFromManageToken validates the token and returns the file it manages.
func FileIDFromManageToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(manageAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.FileID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.FileID, nil
}
