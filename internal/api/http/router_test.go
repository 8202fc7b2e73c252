package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/proptrade-auth/internal/api/http/handlers"
	"github.com/spec-kit/proptrade-auth/internal/auth"
	"github.com/spec-kit/proptrade-auth/internal/config"
	"github.com/spec-kit/proptrade-auth/internal/events"
	"github.com/spec-kit/proptrade-auth/internal/observability"
	"github.com/spec-kit/proptrade-auth/internal/ratelimit"
	"github.com/spec-kit/proptrade-auth/internal/repository"
	"github.com/spec-kit/proptrade-auth/internal/service"
)

const testPassword = "Str0ng!Pass"

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app   *fiber.App
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T, redisPing error) *testServer {
	t.Helper()
	authCfg := config.AuthConfig{
		JWTSecret:            "router-test-secret",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		TwoFactorPendingTTL:  5 * time.Minute,
		EmailVerificationTTL: 24 * time.Hour,
		PasswordResetTTL:     time.Hour,
		PasswordHasher:       config.HasherBcrypt,
		BcryptCost:           bcrypt.MinCost,
		TOTPIssuer:           "PropTradePro",
		TOTPWindow:           1,
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	accounts := repository.NewMemoryAccountRepository()
	authService := service.NewAuthService(authCfg, service.AuthDependencies{
		Accounts:  accounts,
		Passwords: auth.NewPasswordManager(authCfg),
		TOTP:      auth.NewTOTPManager(authCfg.TOTPIssuer, authCfg.TOTPWindow, clock),
		Tokens: auth.NewTokenManager(authCfg.JWTSecret, auth.TokenTTLs{
			Access:           authCfg.AccessTokenTTL,
			Refresh:          authCfg.RefreshTokenTTL,
			TwoFactorPending: authCfg.TwoFactorPendingTTL,
		}, clock),
		Revocations: auth.NewRevocationRegistry(client, time.Second),
		Ephemeral: auth.NewEphemeralTokenStore(repository.NewMemoryEphemeralTokenRepository(), accounts, clock, auth.EphemeralTokenOptions{
			EmailVerificationTTL: authCfg.EmailVerificationTTL,
			PasswordResetTTL:     authCfg.PasswordResetTTL,
		}),
		Limiter:    ratelimit.New(client, config.RateLimitConfig{Enabled: true, MaxAttempts: 5, Window: 15 * time.Minute}, logger, time.Second),
		Dispatcher: events.NewInMemoryDispatcher(),
		Clock:      clock,
		Logger:     logger,
	})
	t.Cleanup(authService.Wait)

	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("proptrade-auth", "test", stubPinger{}, stubPinger{err: redisPing}, metrics),
		Auth:           handlers.NewAuthHandler(authService, true),
		Passwords:      handlers.NewPasswordHandler(authService),
		TwoFactor:      handlers.NewTwoFactorHandler(authService),
		Accounts:       handlers.NewAccountsHandler(service.NewAccountService(accounts, logger)),
		AuthMiddleware: auth.NewAuthMiddleware(authService),
	})
	return &testServer{app: app, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *testServer) register(t *testing.T, email string) (id, verificationToken string) {
	t.Helper()
	status, body := s.do(t, nethttp.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"email": email, "password": testPassword, "first_name": "Ann", "last_name": "Lee",
	})
	require.Equal(t, nethttp.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	account := data["account"].(map[string]any)
	token, _ := data["verification_token"].(string)
	return account["id"].(string), token
}

func (s *testServer) login(t *testing.T, email string) map[string]any {
	t.Helper()
	status, body := s.do(t, nethttp.MethodPost, "/api/v1/auth/login", "", fiber.Map{"email": email, "password": testPassword})
	require.Equal(t, nethttp.StatusOK, status, body)
	return body["data"].(map[string]any)
}

func accessToken(data map[string]any) string {
	return data["auth"].(map[string]any)["access_token"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	id, verification := s.register(t, "trader@x.com")
	require.NotEmpty(t, verification)

	session := s.login(t, "trader@x.com")
	access := accessToken(session)
	refresh := session["auth"].(map[string]any)["refresh_token"].(string)

	status, body := s.do(t, nethttp.MethodGet, "/api/v1/auth/me", access, nil)
	require.Equal(t, nethttp.StatusOK, status)
	account := body["data"].(map[string]any)["account"].(map[string]any)
	assert.Equal(t, id, account["id"])
	assert.Equal(t, false, account["is_verified"])
	assert.NotContains(t, account, "password_hash")

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/auth/verify-email/"+verification, "", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["account"].(map[string]any)["is_verified"])

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{"refresh_token": refresh})
	require.Equal(t, nethttp.StatusOK, status)
	assert.NotEmpty(t, body["data"].(map[string]any)["access_token"])

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/auth/logout", access, fiber.Map{"refresh_token": refresh})
	require.Equal(t, nethttp.StatusOK, status)

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/auth/me", access, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TOKEN", errorCode(body))

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{"refresh_token": refresh})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "trader@x.com")

	status, wrongPassword := s.do(t, nethttp.MethodPost, "/api/v1/auth/login", "", fiber.Map{"email": "trader@x.com", "password": "nope"})
	require.Equal(t, nethttp.StatusUnauthorized, status)
	status, unknown := s.do(t, nethttp.MethodPost, "/api/v1/auth/login", "", fiber.Map{"email": "ghost@x.com", "password": "nope"})
	require.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, wrongPassword, unknown)
}

func TestPasswordResetRequestIsUniform(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "trader@x.com")

	status, known := s.do(t, nethttp.MethodPost, "/api/v1/auth/password/reset-request", "", fiber.Map{"email": "trader@x.com"})
	require.Equal(t, nethttp.StatusAccepted, status)
	status, unknown := s.do(t, nethttp.MethodPost, "/api/v1/auth/password/reset-request", "", fiber.Map{"email": "ghost@x.com"})
	require.Equal(t, nethttp.StatusAccepted, status)
	assert.Equal(t, known, unknown)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/auth/password/reset", "", fiber.Map{"token": "bogus", "new_password": "N3w!Password"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "TOKEN_INVALID", errorCode(body))
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "trader@x.com")
	access := accessToken(s.login(t, "trader@x.com"))

	status, _ := s.do(t, nethttp.MethodPost, "/api/v1/auth/password/change", access, fiber.Map{
		"current_password": testPassword, "new_password": "N3w!Password",
	})
	require.Equal(t, nethttp.StatusOK, status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/auth/login", "", fiber.Map{"email": "trader@x.com", "password": "N3w!Password"})
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestTwoFactorOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "trader@x.com")
	access := accessToken(s.login(t, "trader@x.com"))

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/auth/2fa/enable", access, nil)
	require.Equal(t, nethttp.StatusOK, status)
	setup := body["data"].(map[string]any)
	secret := setup["secret"].(string)
	assert.Contains(t, setup["provisioning_uri"], "otpauth://totp/")

	code := func() string {
		c, err := totp.GenerateCodeCustom(secret, s.clock.Now(), totp.ValidateOpts{
			Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
		})
		require.NoError(t, err)
		return c
	}

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/auth/2fa/confirm", access, fiber.Map{"code": code()})
	require.Equal(t, nethttp.StatusOK, status)

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/auth/login", "", fiber.Map{"email": "trader@x.com", "password": testPassword})
	require.Equal(t, nethttp.StatusOK, status)
	challenge := body["data"].(map[string]any)
	assert.Equal(t, true, challenge["requires_2fa"])
	assert.NotContains(t, challenge, "auth")
	ticket := challenge["mfa_token"].(string)

	s.clock.Advance(30 * time.Second)
	wrong := "000000"
	if wrong == code() {
		wrong = "111111"
	}
	status, body = s.do(t, nethttp.MethodPost, "/api/v1/auth/login/2fa", "", fiber.Map{"mfa_token": ticket, "code": wrong})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TWO_FACTOR_CODE", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/auth/login/2fa", "", fiber.Map{"mfa_token": ticket, "code": code()})
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.NotEmpty(t, accessToken(body["data"].(map[string]any)))

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/auth/login/2fa", "", fiber.Map{"mfa_token": ticket, "code": code()})
	assert.Equal(t, nethttp.StatusUnauthorized, status, "ticket is single use")
}

func TestAccountsAccessControl(t *testing.T) {
	s := newTestServer(t, nil)
	ownID, _ := s.register(t, "own@x.com")
	otherID, _ := s.register(t, "other@x.com")
	access := accessToken(s.login(t, "own@x.com"))

	status, _ := s.do(t, nethttp.MethodGet, "/api/v1/accounts/"+ownID, access, nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, hidden := s.do(t, nethttp.MethodGet, "/api/v1/accounts/"+otherID, access, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(hidden))

	status, missing := s.do(t, nethttp.MethodGet, "/api/v1/accounts/6f1c1a52-3d5e-4a7b-9c1d-2e3f4a5b6c7d", access, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, missing["error"].(map[string]any)["message"], hidden["error"].(map[string]any)["message"])

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/accounts/"+otherID+"/deactivate", access, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/accounts/"+ownID, "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestFrameworkErrorsUseEnvelope(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/auth/login", "", "{not json")
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/nowhere", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, errors.New("redis down"))

	status, body := s.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, status)
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "ok", details["postgres"])
	assert.Equal(t, "unavailable", details["redis"])

	status, body = s.do(t, nethttp.MethodGet, "/health/metrics", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Contains(t, body, "requests")
}
