package gateway

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// RoomTokenClaims represents the claims in a room access token
type RoomTokenClaims struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTAuth verifies HS256 tokens issued by the user service.
type JWTAuth struct {
	secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// Verify validates a JWT token and returns who it was issued to.
func (a *JWTAuth) Verify(_ context.Context, tokenString string) (models.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return models.Identity{}, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*RoomTokenClaims)
	if !ok || !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}
	if claims.UserId == "" {
		return models.Identity{}, ErrInvalidClaims
	}
	name := claims.Username
	if name == "" {
		name = claims.UserId
	}
	return models.Identity{UserID: claims.UserId, Username: name}, nil
}
