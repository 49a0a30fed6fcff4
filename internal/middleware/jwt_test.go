package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/aisensei-api/internal/middleware"
)

const testSecret = "grading-secret"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func protectedApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.JWTProtected(testSecret))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(strconv.FormatUint(uint64(middleware.TeacherID(c)), 10))
	})
	return app
}

func perform(t *testing.T, app *fiber.App, authorization string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestJWTProtectedStoresTeacherID(t *testing.T) {
	for _, claims := range []jwt.MapClaims{
		{"sub": "42", "exp": time.Now().Add(time.Hour).Unix()},
		{"teacher_id": float64(42)},
		{"user_id": "42"},
	} {
		token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)
		resp := perform(t, protectedApp(), "Bearer "+token)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "42", string(body))
	}
}

func TestJWTProtectedAcceptsQueryTokenOnUpgrade(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "7"})

	req := httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil)
	resp, err := protectedApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err = protectedApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "7", string(body))
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongSecret := signToken(t, jwt.SigningMethodHS256, "other", jwt.MapClaims{"sub": "1"})
	noSubject := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"role": "teacher"})

	cases := map[string]string{
		"missing":      "",
		"scheme":       "Basic abc",
		"empty":        "Bearer ",
		"expired":      "Bearer " + expired,
		"wrong secret": "Bearer " + wrongSecret,
		"no subject":   "Bearer " + noSubject,
	}
	for name, header := range cases {
		resp := perform(t, protectedApp(), header)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		require.Equal(t, middleware.GetCorrelationID(c), middleware.CorrelationIDFromContext(c.UserContext()))
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "req-123", resp.Header.Get(middleware.CorrelationHeader))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Len(t, resp.Header.Get(middleware.CorrelationHeader), 36)
}

func TestRateLimitPerTeacher(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("teacher_id", uint(7))
		return c.Next()
	})
	app.Use(middleware.RateLimit("grading", 2, time.Minute))
	app.Post("/", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
