package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/letter-box/internal/api"
	"github.com/yourusername/letter-box/internal/middleware"
	"github.com/yourusername/letter-box/internal/store"
)

type testApp struct {
	router *gin.Engine
	repos  *store.InMemoryRepositoryManager
	m      *Manager

	// prime が設定されていると /test/prime がそのクッキー操作を実行
	// する。検証経路を直接試すためのバックドア。
	prime func(c *gin.Context)
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := store.NewInMemoryRepositoryManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(repos, repos.LoginAttempts(), logger)

	app := &testApp{repos: repos, m: m}

	router := gin.New()

	cookieStore := cookie.NewStore([]byte("test-hash-key"), []byte("0123456789abcdef"))
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   CookieMaxAgeSeconds(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(SessionCookieName, cookieStore))
	router.Use(middleware.ErrorHandler(logger))

	apiGroup := router.Group("/api")
	authRoutes := apiGroup.Group("/auth")
	authRoutes.POST("/login", m.RateLimit(), m.Login)
	authRoutes.POST("/logout", m.RequireAuth(), m.Logout)
	authRoutes.GET("/me", m.RequireAuth(), m.Me)
	authRoutes.PUT("/change-password", m.RequireAuth(), m.ChangePassword)

	admin := apiGroup.Group("/admin")
	admin.Use(m.RequireAuth(), middleware.RequireRole(store.RoleAdmin))
	admin.GET("/login-attempts", m.ListLoginAttempts)
	admin.DELETE("/login-attempts/:ip", m.UnlockIP)

	router.GET("/test/prime", func(c *gin.Context) {
		if app.prime == nil {
			t.Fatal("prime is not set")
		}
		app.prime(c)
		c.Status(http.StatusNoContent)
	})

	app.router = router
	return app
}

// seedUser はテスト用ユーザーを作成します。ハッシュは MinCost で十分。
func (app *testApp) seedUser(t *testing.T, role store.Role, password string) *store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}
	user, err := app.repos.Users().Create(context.Background(), &store.User{
		Role:         role,
		Name:         string(role),
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed user error: %v", err)
	}
	return user
}

func (app *testApp) do(t *testing.T, method, path, ip string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal error: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func sessionCookies(w *httptest.ResponseRecorder) []*http.Cookie {
	return (&http.Response{Header: w.Header()}).Cookies()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) api.Response {
	t.Helper()
	var resp api.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp
}

func TestLoginSuccess(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, store.RoleViewer, "viewer-pass-123")
	ip := "203.0.113.9"

	// 事前に失敗履歴を仕込んでおく
	err := app.repos.LoginAttempts().Create(context.Background(), &store.LoginAttempt{
		IPAddress: ip, FailedAttempts: 2, LastAttemptAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed attempt error: %v", err)
	}

	w := app.do(t, http.MethodPost, "/api/auth/login", ip,
		gin.H{"password": "viewer-pass-123"}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	data, ok := resp.Data.(map[string]any)
	if !ok || data["role"] != "viewer" {
		t.Fatalf("unexpected data: %+v", resp.Data)
	}

	// クッキーが発行されている
	cookies := sessionCookies(w)
	if len(cookies) == 0 {
		t.Fatal("expected a Set-Cookie header")
	}

	// 成功したIPの失敗履歴は消える
	if _, err := app.repos.LoginAttempts().Find(context.Background(), ip); err != store.ErrNotFound {
		t.Fatalf("expected attempt record to be deleted, got %v", err)
	}

	// 発行されたセッションで認証できる
	me := app.do(t, http.MethodGet, "/api/auth/me", ip, nil, cookies)
	if me.Code != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", me.Code, me.Body.String())
	}
}

func TestLoginMissingPassword(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, store.RoleViewer, "viewer-pass-123")

	w := app.do(t, http.MethodPost, "/api/auth/login", "203.0.113.9", gin.H{}, nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	resp := decode(t, w)
	if resp.Error == nil || *resp.Error != "PASSWORD_REQUIRED" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, store.RoleViewer, "viewer-pass-123")

	w := app.do(t, http.MethodPost, "/api/auth/login", "203.0.113.9",
		gin.H{"password": "nope"}, nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	resp := decode(t, w)
	if resp.Error == nil || *resp.Error != "INVALID_PASSWORD" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok || data["remainingAttempts"] != float64(MaxLoginAttempts-1) {
		t.Fatalf("unexpected data: %+v", resp.Data)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, store.RoleViewer, "viewer-pass-123")
	ip := "203.0.113.9"

	for i := 0; i < MaxLoginAttempts; i++ {
		w := app.do(t, http.MethodPost, "/api/auth/login", ip, gin.H{"password": "nope"}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, w.Code)
		}
	}

	// 5回失敗した後はロックされ、失敗としては数えられない
	w := app.do(t, http.MethodPost, "/api/auth/login", ip, gin.H{"password": "nope"}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	resp := decode(t, w)
	if resp.Error == nil || *resp.Error != api.CodeAccountLocked {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok || data["lockedUntil"] == nil {
		t.Fatalf("expected lockedUntil, got %+v", resp.Data)
	}
	lockedUntil, err := time.Parse(time.RFC3339Nano, data["lockedUntil"].(string))
	if err != nil {
		t.Fatalf("lockedUntil is not a timestamp: %v", err)
	}
	until := time.Until(lockedUntil)
	if until < 14*time.Minute || until > 16*time.Minute {
		t.Fatalf("lockedUntil %v is not ~15 minutes ahead", until)
	}

	// ロック中はカウントが増えない
	attempt, err := app.repos.LoginAttempts().Find(context.Background(), ip)
	if err != nil {
		t.Fatalf("find attempt error: %v", err)
	}
	if attempt.FailedAttempts != MaxLoginAttempts {
		t.Fatalf("failedAttempts = %d, want %d", attempt.FailedAttempts, MaxLoginAttempts)
	}
}

func TestMeWithoutSession(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/auth/me", "203.0.113.9", nil, nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	resp := decode(t, w)
	if resp.Error == nil || *resp.Error != api.CodeUnauthorized {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestMeWithTamperedCookie(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/auth/me", "203.0.113.9", nil,
		[]*http.Cookie{{Name: SessionCookieName, Value: "garbage-value"}})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMeWithPartialClaimCookie(t *testing.T) {
	app := newTestApp(t)

	// 正規に封緘されているが、3キーのうち一部しか入っていないクッキー
	app.prime = func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(sessionKeyUserID, int64(1))
		session.Set(sessionKeyRole, string(store.RoleAdmin))
		if err := session.Save(); err != nil {
			t.Fatalf("session save failed: %v", err)
		}
	}
	prime := app.do(t, http.MethodGet, "/test/prime", "", nil, nil)
	cookies := sessionCookies(prime)
	if len(cookies) == 0 {
		t.Fatal("expected the prime route to issue a cookie")
	}

	me := app.do(t, http.MethodGet, "/api/auth/me", "203.0.113.9", nil, cookies)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", me.Code)
	}

	// 不完全なクレームはベストエフォートで消去され、クッキーが
	// 出し直される
	cleared := sessionCookies(me)
	if len(cleared) == 0 {
		t.Fatal("expected the partial cookie to be rewritten")
	}

	// 出し直されたクッキーは匿名として扱われる
	again := app.do(t, http.MethodGet, "/api/auth/me", "203.0.113.9", nil, cleared)
	if again.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", again.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, store.RoleViewer, "viewer-pass-123")
	ip := "203.0.113.9"

	login := app.do(t, http.MethodPost, "/api/auth/login", ip,
		gin.H{"password": "viewer-pass-123"}, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d", login.Code)
	}
	cookies := sessionCookies(login)

	logout := app.do(t, http.MethodPost, "/api/auth/logout", ip, nil, cookies)
	if logout.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body = %s", logout.Code, logout.Body.String())
	}

	// 古いクッキーを出し直しても、DB側のレコードが消えているので拒否される
	me := app.do(t, http.MethodGet, "/api/auth/me", ip, nil, cookies)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: status = %d, want 401", me.Code)
	}
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, store.RoleViewer, "old-password-1")
	ip := "203.0.113.9"

	login := app.do(t, http.MethodPost, "/api/auth/login", ip,
		gin.H{"password": "old-password-1"}, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d", login.Code)
	}
	cookies := sessionCookies(login)

	change := app.do(t, http.MethodPut, "/api/auth/change-password", ip,
		gin.H{"currentPassword": "old-password-1", "newPassword": "new-password-1"}, cookies)
	if change.Code != http.StatusOK {
		t.Fatalf("change status = %d, body = %s", change.Code, change.Body.String())
	}

	// 全セッションが失効している
	me := app.do(t, http.MethodGet, "/api/auth/me", ip, nil, cookies)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("me after change: status = %d, want 401", me.Code)
	}

	// 新しいパスワードでログインできる
	relogin := app.do(t, http.MethodPost, "/api/auth/login", ip,
		gin.H{"password": "new-password-1"}, nil)
	if relogin.Code != http.StatusOK {
		t.Fatalf("relogin status = %d, body = %s", relogin.Code, relogin.Body.String())
	}
}

func TestChangePasswordValidation(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, store.RoleViewer, "old-password-1")
	ip := "203.0.113.9"

	login := app.do(t, http.MethodPost, "/api/auth/login", ip,
		gin.H{"password": "old-password-1"}, nil)
	cookies := sessionCookies(login)

	missing := app.do(t, http.MethodPut, "/api/auth/change-password", ip,
		gin.H{"currentPassword": "old-password-1"}, cookies)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("missing new password: status = %d, want 400", missing.Code)
	}

	weak := app.do(t, http.MethodPut, "/api/auth/change-password", ip,
		gin.H{"currentPassword": "old-password-1", "newPassword": "short"}, cookies)
	if weak.Code != http.StatusBadRequest {
		t.Fatalf("weak password: status = %d, want 400", weak.Code)
	}
	resp := decode(t, weak)
	if resp.Error == nil || *resp.Error != "WEAK_PASSWORD" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}

	wrong := app.do(t, http.MethodPut, "/api/auth/change-password", ip,
		gin.H{"currentPassword": "not-the-password", "newPassword": "new-password-1"}, cookies)
	if wrong.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password: status = %d, want 401", wrong.Code)
	}
}

func TestExpiredSessionIsRejectedAndDeleted(t *testing.T) {
	app := newTestApp(t)
	user := app.seedUser(t, store.RoleViewer, "viewer-pass-123")
	ctx := context.Background()

	// 期限切れのセッションレコードを直接仕込み、クレームを正規の
	// 経路で封緘する
	token := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	if err := app.repos.Sessions().Create(ctx, token, user.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("seed session error: %v", err)
	}
	app.prime = func(c *gin.Context) {
		if err := WriteClaim(c, Claim{UserID: user.ID, Role: user.Role, SessionToken: token}); err != nil {
			t.Fatalf("WriteClaim failed: %v", err)
		}
	}
	prime := app.do(t, http.MethodGet, "/test/prime", "", nil, nil)
	cookies := sessionCookies(prime)

	me := app.do(t, http.MethodGet, "/api/auth/me", "203.0.113.9", nil, cookies)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", me.Code)
	}

	// 観測の副作用として期限切れレコードが消えていること
	if _, err := app.repos.Sessions().Find(ctx, token); err != store.ErrNotFound {
		t.Fatalf("expected expired session to be deleted, got %v", err)
	}
}

func TestSessionUserMismatchIsRejected(t *testing.T) {
	app := newTestApp(t)
	user := app.seedUser(t, store.RoleViewer, "viewer-pass-123")
	ctx := context.Background()

	token := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	if err := app.repos.Sessions().Create(ctx, token, user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed session error: %v", err)
	}

	// クレームの userId がDBレコードの所有者と食い違うケース
	app.prime = func(c *gin.Context) {
		claim := Claim{UserID: user.ID + 100, Role: store.RoleAdmin, SessionToken: token}
		if err := WriteClaim(c, claim); err != nil {
			t.Fatalf("WriteClaim failed: %v", err)
		}
	}
	prime := app.do(t, http.MethodGet, "/test/prime", "", nil, nil)
	cookies := sessionCookies(prime)

	me := app.do(t, http.MethodGet, "/api/auth/me", "203.0.113.9", nil, cookies)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", me.Code)
	}
}

func TestAdminLoginAttemptEndpoints(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, store.RoleAdmin, "admin-pass-123")
	app.seedUser(t, store.RoleViewer, "viewer-pass-123")
	ctx := context.Background()

	lockedUntil := time.Now().Add(10 * time.Minute)
	err := app.repos.LoginAttempts().Create(ctx, &store.LoginAttempt{
		IPAddress:      "198.51.100.7",
		FailedAttempts: 5,
		LockedUntil:    &lockedUntil,
		LastAttemptAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed attempt error: %v", err)
	}

	adminLogin := app.do(t, http.MethodPost, "/api/auth/login", "203.0.113.1",
		gin.H{"password": "admin-pass-123"}, nil)
	adminCookies := sessionCookies(adminLogin)

	viewerLogin := app.do(t, http.MethodPost, "/api/auth/login", "203.0.113.2",
		gin.H{"password": "viewer-pass-123"}, nil)
	viewerCookies := sessionCookies(viewerLogin)

	// viewer には見せない
	forbidden := app.do(t, http.MethodGet, "/api/admin/login-attempts", "203.0.113.2", nil, viewerCookies)
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("viewer status = %d, want 403", forbidden.Code)
	}

	list := app.do(t, http.MethodGet, "/api/admin/login-attempts", "203.0.113.1", nil, adminCookies)
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", list.Code, list.Body.String())
	}
	resp := decode(t, list)
	items, ok := resp.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected list payload: %+v", resp.Data)
	}

	unlock := app.do(t, http.MethodDelete, "/api/admin/login-attempts/198.51.100.7", "203.0.113.1", nil, adminCookies)
	if unlock.Code != http.StatusOK {
		t.Fatalf("unlock status = %d, body = %s", unlock.Code, unlock.Body.String())
	}

	if _, err := app.repos.LoginAttempts().Find(ctx, "198.51.100.7"); err != store.ErrNotFound {
		t.Fatalf("expected attempt record to be deleted, got %v", err)
	}
}
