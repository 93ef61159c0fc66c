package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/database"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils/auth"
	"gorm.io/gorm"
)

type memoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
	locks  map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counts: map[string]int64{}, locks: map[string]time.Duration{}}
}

func (m *memoryStore) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], window, nil
}

func (m *memoryStore) Lock(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[key] = ttl
	return nil
}

func (m *memoryStore) LockedFor(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[key], nil
}

func (m *memoryStore) Clear(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.counts, k)
		delete(m.locks, k)
	}
	return nil
}

func TestIngestionQuota(t *testing.T) {
	store := newMemoryStore()
	quota := NewIngestionQuota(store, 2, time.Hour)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(9))
		return c.Next()
	})
	app.Post("/parse", quota.Enforce(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i, want := range []int{200, 200, 429} {
		resp, err := app.Test(httptest.NewRequest("POST", "/parse", nil))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if resp.StatusCode != want {
			t.Errorf("request %d: expected %d, got %d", i, want, resp.StatusCode)
		}
		if want == 429 && resp.Header.Get(fiber.HeaderRetryAfter) != "3600" {
			t.Errorf("expected Retry-After 3600, got %q", resp.Header.Get(fiber.HeaderRetryAfter))
		}
	}
}

func TestIngestionQuota_Disabled(t *testing.T) {
	app := fiber.New()
	app.Post("/parse", NewIngestionQuota(nil, 1, time.Hour).Enforce(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, _ := app.Test(httptest.NewRequest("POST", "/parse", nil))
		if resp.StatusCode != 200 {
			t.Fatalf("disabled quota should not reject, got %d", resp.StatusCode)
		}
	}
}

func TestBruteForceLockout(t *testing.T) {
	store := newMemoryStore()
	bf := NewBruteForceProtection(store)
	ctx := context.Background()

	app := fiber.New()
	app.Post("/login", bf.CheckLockout(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/ip", func(c *fiber.Ctx) error {
		return c.SendString(c.IP())
	})

	ipResp, _ := app.Test(httptest.NewRequest("GET", "/ip", nil))
	body, _ := io.ReadAll(ipResp.Body)
	ip := string(body)

	for i := 0; i < 4; i++ {
		bf.RecordFailedAttempt(ctx, ip)
	}
	resp, _ := app.Test(httptest.NewRequest("POST", "/login", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("four failures should not lock, got %d", resp.StatusCode)
	}

	bf.RecordFailedAttempt(ctx, ip)
	resp, _ = app.Test(httptest.NewRequest("POST", "/login", nil))
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected lockout after five failures, got %d", resp.StatusCode)
	}
	if resp.Header.Get(fiber.HeaderRetryAfter) != "120" {
		t.Errorf("expected a two minute lockout, got %q", resp.Header.Get(fiber.HeaderRetryAfter))
	}

	bf.RecordSuccessfulAttempt(ctx, ip)
	resp, _ = app.Test(httptest.NewRequest("POST", "/login", nil))
	if resp.StatusCode != 200 {
		t.Errorf("success should clear the lockout, got %d", resp.StatusCode)
	}
}

func newAuthFixture(t *testing.T) (*gorm.DB, *auth.JWTManager, *fiber.App) {
	t.Helper()
	store, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{Secret: "test-secret", Issuer: "test"})
	mw := NewAuthMiddleware(jwtManager, store.DB())

	app := fiber.New()
	app.Get("/me", mw.Required(), func(c *fiber.Ctx) error {
		id, _ := GetUserID(c)
		return c.JSON(fiber.Map{"id": id})
	})
	app.Get("/admin", mw.RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return store.DB(), jwtManager, app
}

func TestAuthMiddleware(t *testing.T) {
	db, jwtManager, app := newAuthFixture(t)

	admin := model.User{Email: "admin@example.com", Name: "Admin", PasswordHash: "x", Role: model.RoleAdmin, Status: model.UserStatusActive}
	member := model.User{Email: "user@example.com", Name: "User", PasswordHash: "x", Role: model.RoleUser, Status: model.UserStatusActive}
	db.Create(&admin)
	db.Create(&member)

	adminPrincipal := auth.Principal{UserID: admin.ID, Email: admin.Email, Role: admin.Role}
	adminAccess, _ := jwtManager.IssueAccess(adminPrincipal)
	userAccess, _ := jwtManager.IssueAccess(auth.Principal{UserID: member.ID, Email: member.Email, Role: member.Role})
	adminRefresh, _ := jwtManager.IssueRefresh(adminPrincipal)
	adminToken, adminJTI := adminAccess.Token, adminAccess.JTI
	userToken, refreshToken := userAccess.Token, adminRefresh.Token

	call := func(path, token string) int {
		req := httptest.NewRequest("GET", path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Errorf("request: %v", err)
			return 0
		}
		return resp.StatusCode
	}

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"no token", "/me", "", 401},
		{"garbage token", "/me", "abc", 401},
		{"refresh token rejected", "/me", refreshToken, 401},
		{"user on /me", "/me", userToken, 200},
		{"user on /admin", "/admin", userToken, 403},
		{"admin on /admin", "/admin", adminToken, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := call(tt.path, tt.token); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}

	blacklist := auth.NewBlacklistService(db)
	if err := blacklist.RevokeToken(context.Background(), adminJTI, admin.ID, time.Now().Add(time.Hour), "logout"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got := call("/admin", adminToken); got != 401 {
		t.Errorf("revoked token should be rejected, got %d", got)
	}

	if err := blacklist.RevokeAllUserTokens(context.Background(), member.ID); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if got := call("/me", userToken); got != 401 {
		t.Errorf("token from an old version should be rejected, got %d", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
	}

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.SendString(token)
	})

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", tt.header)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			if got := resp.StatusCode == fiber.StatusOK; got != tt.ok {
				t.Fatalf("ok = %v, want %v", got, tt.ok)
			}
			if tt.ok && string(body) != tt.want {
				t.Errorf("token = %q, want %q", body, tt.want)
			}
		})
	}
}
