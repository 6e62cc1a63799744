package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gympulse/models"
)

// Claims identify a staff user and the gym every request is scoped to.
type Claims struct {
	UserID uint            `json:"user_id"`
	GymID  uint            `json:"gym_id"`
	Role   models.RoleEnum `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWTToken issues an access token for user. Tokens are minted by the
// auth service in production; this is used by tooling and tests.
func GenerateJWTToken(user *models.User, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		GymID:  user.GymID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseJWTToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.GymID == 0 {
			return nil, errors.New("token has no gym")
		}
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
