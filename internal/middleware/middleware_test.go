package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapstamp/shop-review-backend/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authRouter(secret string) *gin.Engine {
	auth := NewAdminAuthenticator(&config.AuthConfig{JWTSecret: secret})
	router := gin.New()
	router.Use(auth.AdminAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin_id": c.GetString(ContextKeyAdminID)})
	})
	return router
}

func signToken(t *testing.T, secret, adminID string, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func get(router *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuth_DisabledWithoutSecret(t *testing.T) {
	rec := get(authRouter(""), "/protected", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	rec := get(authRouter("secret"), "/protected", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuth_NotBearer(t *testing.T) {
	rec := get(authRouter("secret"), "/protected", map[string]string{
		"Authorization": "Basic dXNlcjpwYXNz",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuth_ValidToken(t *testing.T) {
	token := signToken(t, "secret", "admin-1", time.Hour)
	rec := get(authRouter("secret"), "/protected", map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin-1")
}

func TestAdminAuth_WrongSecret(t *testing.T) {
	token := signToken(t, "other-secret", "admin-1", time.Hour)
	rec := get(authRouter("secret"), "/protected", map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuth_ExpiredToken(t *testing.T) {
	token := signToken(t, "secret", "admin-1", -time.Hour)
	rec := get(authRouter("secret"), "/protected", map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "40102")
}

func TestRequestID_Generated(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := get(router, "/", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_PropagatesIncoming(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := get(router, "/", map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestCORS_AllowedOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://admin.example.com"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := get(router, "/", map[string]string{"Origin": "https://admin.example.com"})
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://admin.example.com"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := get(router, "/", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"*"}))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
