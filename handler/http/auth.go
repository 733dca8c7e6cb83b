package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

const userIDKey = "userID"

// RequireUser verifies the HS256 bearer token and stores the subject as the
// caller's user id.
func RequireUser(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		userID, err := authenticate(parser, secret, c.GetHeader("Authorization"))
		if err != nil {
			sendError(c, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func authenticate(parser *jwt.Parser, secret []byte, header string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	if len(secret) == 0 {
		return uuid.Nil, fmt.Errorf("%w: authentication is not configured", ErrUnauthorized)
	}

	token, err := parser.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrUnauthorized)
	}
	return userID, nil
}

func currentUser(c *gin.Context) uuid.UUID {
	id, _ := c.Get(userIDKey)
	userID, _ := id.(uuid.UUID)
	return userID
}
