package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fanfrenzy/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityKey = "identity"

// Claims are the fields read from the hosted auth provider's access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 access tokens issued by the auth provider.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *TokenVerifier) Verify(tokenString string) (domain.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Identity{}, errors.New("invalid token")
	}
	return domain.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// OptionalAuth attaches the caller's identity when a bearer token is sent.
// Requests without a token continue anonymously; a bad token is a 401.
// Websocket clients cannot set headers, so they may pass access_token instead.
func OptionalAuth(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("access_token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				jsonError(c, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.Next()
			return
		}
		if v == nil {
			jsonError(c, http.StatusUnauthorized, "authentication is not configured")
			return
		}

		id, err := v.Verify(token)
		if err != nil {
			jsonError(c, http.StatusUnauthorized, "Failed to validate token")
			return
		}
		c.Set(identityKey, &id)
		c.Set("user_id", id.UserID)
		c.Set("email", id.Email)
		c.Next()
	}
}

func identityFrom(c *gin.Context) *domain.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*domain.Identity)
	return id
}
