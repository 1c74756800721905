package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"form-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ContextUserID = "user_id"

	DefaultTokenTTL = 24 * time.Hour
)

var errInvalidClaims = errors.New("invalid token claims")

type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: secret, ttl: ttl}
}

func (t *Tokens) Generate(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(t.ttl).Unix(),
	})
	return token.SignedString(t.secret)
}

// Validate checks the signature and expiry and returns the user_id claim.
func (t *Tokens) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errInvalidClaims
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errInvalidClaims
	}
	return userID, nil
}

// RequireAuth accepts a bearer token or, without an Authorization header, a
// signed-in session. The user id is stored in the context under ContextUserID.
func RequireAuth(tokens *Tokens, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ""
		if header := c.GetHeader("Authorization"); header != "" {
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || scheme != "Bearer" || raw == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization header format"})
				return
			}
			id, err := tokens.Validate(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
				return
			}
			userID = id
		} else {
			userID = sessions.UserID(c)
		}

		if _, err := primitive.ObjectIDFromHex(userID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID returns the id RequireAuth stored in the context.
func UserID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString(ContextUserID))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}
