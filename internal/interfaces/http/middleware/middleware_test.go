package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRecoveryReturnsJSON500(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/boom", func(*gin.Context) { panic("kaboom") })

	rec := serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error_code":"1007"`)
}

func TestRequestIDPropagatesOrGenerates(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	var seen string
	engine.GET("/", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := serve(engine, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	rec = serve(engine, req)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "has space")
	rec = serve(engine, req)
	assert.NotEqual(t, "has space", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), seen)
}

func TestIdentity(t *testing.T) {
	engine := gin.New()
	engine.Use(Identity())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"/"+ProjectID(c))
	})

	rec := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, " u1 ")
	req.Header.Set(ProjectIDHeader, "p1")
	rec = serve(engine, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1/p1", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, strings.Repeat("u", 65))
	rec = serve(engine, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func limitedEngine(cfg config.RateLimitConfig, limiter RateLimiter) *gin.Engine {
	engine := gin.New()
	engine.Use(Identity(), RateLimit(config.NewStaticManager(&config.Config{Security: config.SecurityConfig{RateLimit: cfg}}), limiter))
	engine.GET("/v1/models", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func userRequest() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set(UserIDHeader, "u1")
	return req
}

func TestRateLimitKeyedByUserAndRoute(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	rec := serve(limitedEngine(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 5}, limiter), userRequest())

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"u1:GET /v1/models"}, limiter.keys)
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	rec := serve(limitedEngine(config.RateLimitConfig{Enabled: true}, limiter), userRequest())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	rec := serve(limitedEngine(config.RateLimitConfig{Enabled: false}, limiter), userRequest())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, limiter.keys)
}
