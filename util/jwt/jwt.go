package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/model"

	"github.com/golang-jwt/jwt/v5"
)

func Issue(secret string, userID int64, role model.Role, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// ParseAuth validates a bearer header and returns the caller it names.
func ParseAuth(authHeader string, secret string) (model.Actor, error) {
	tokenStr := strings.TrimSpace(authHeader)
	if tokenStr == "" {
		return model.Actor{}, errors.New("missing authorization")
	}

	if strings.HasPrefix(strings.ToLower(tokenStr), "bearer ") {
		tokenStr = strings.TrimSpace(tokenStr[7:])
	}
	if tokenStr == "" {
		return model.Actor{}, errors.New("missing token")
	}

	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return model.Actor{}, err
	}
	if !tok.Valid {
		return model.Actor{}, errors.New("invalid token")
	}

	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return model.Actor{}, errors.New("invalid claims")
	}
	return ActorFromClaims(mc)
}

// ActorFromClaims reads sub and role. A missing role means a plain member.
func ActorFromClaims(mc jwt.MapClaims) (model.Actor, error) {
	sub, ok := mc["sub"].(float64)
	if !ok || sub <= 0 {
		return model.Actor{}, errors.New("sub missing in claims")
	}
	role := model.RoleMember
	if r, ok := mc["role"].(string); ok && r != "" {
		role = model.Role(r)
	}
	return model.Actor{UserID: int64(sub), Role: role}, nil
}
