package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/aisensei-api/internal/utils"
)

const teacherIDLocal = "teacher_id"

var errInvalidSubject = errors.New("invalid subject")

// JWTProtected validates HMAC bearer tokens and stores the teacher id from the
// `sub`, `teacher_id` or `user_id` claim.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	return func(c *fiber.Ctx) error {
		authorization := c.Get(fiber.HeaderAuthorization)
		if authorization == "" && isUpgrade(c) {
			// Browsers cannot set headers on a websocket handshake.
			if token := strings.TrimSpace(c.Query("access_token")); token != "" {
				authorization = "Bearer " + token
			}
		}
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		teacherID, ok := teacherIDFromClaims(claims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}
		c.Locals(teacherIDLocal, teacherID)

		return c.Next()
	}
}

func isUpgrade(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
}

// TeacherID returns the authenticated teacher, or 0 when the request is anonymous.
func TeacherID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(teacherIDLocal).(uint); ok {
		return id
	}
	return 0
}

func teacherIDFromClaims(claims jwt.MapClaims) (uint, bool) {
	for _, key := range []string{"sub", "teacher_id", "user_id"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		if id, err := normalizeTeacherID(value); err == nil && id != 0 {
			return id, true
		}
	}
	return 0, false
}

func normalizeTeacherID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return 0, errInvalidSubject
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, errInvalidSubject
	}
}
