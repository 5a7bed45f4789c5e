package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailkeeper/agent/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// TokenBlacklist tracks revoked token IDs so a logout takes effect before a
// token's natural expiry.
type TokenBlacklist struct {
	redis  *redis.Client
	prefix string
}

var tokenBlacklist *TokenBlacklist

// InitTokenBlacklist wires the blacklist to Redis. Without Redis, revocation
// checks are skipped (a token stays valid until it naturally expires).
func InitTokenBlacklist(redisClient *redis.Client) {
	if redisClient == nil {
		logger.Warn("Redis client not provided, token blacklist disabled")
		return
	}
	tokenBlacklist = &TokenBlacklist{redis: redisClient, prefix: "token:blacklist:"}
	logger.Info("Token blacklist initialized")
}

// RevokeToken adds a token to the blacklist until its natural expiry.
func RevokeToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if tokenBlacklist == nil {
		return nil
	}
	return tokenBlacklist.redis.Set(ctx, tokenBlacklist.prefix+tokenID, "1", expiry).Err()
}

func IsTokenRevoked(ctx context.Context, tokenID string) bool {
	if tokenBlacklist == nil {
		return false
	}
	exists, _ := tokenBlacklist.redis.Exists(ctx, tokenBlacklist.prefix+tokenID).Result()
	return exists > 0
}

// JWTAuth validates an HS256 bearer token and attaches user_id to the
// request context (§4.R). SSE/EventSource clients can't set headers, so a
// token query param is also accepted.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.WithError(err).Warn("JWT validation failed")
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
		}

		if jti, ok := claims["jti"].(string); ok && jti != "" && IsTokenRevoked(c.Context(), jti) {
			return fiber.NewError(fiber.StatusUnauthorized, "token has been revoked")
		}

		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user id in token")
		}

		c.Locals("user_id", userID)
		if email, ok := claims["email"].(string); ok {
			c.Locals("user_email", email)
		}

		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}
