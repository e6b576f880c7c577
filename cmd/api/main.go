// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/letter-box/internal/auth"
	"github.com/yourusername/letter-box/internal/config"
	"github.com/yourusername/letter-box/internal/middleware"
	"github.com/yourusername/letter-box/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	// 永続ストアの初期化（マイグレーション込み）
	repos, err := store.NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	defer repos.Close()

	// ログイン試行トラッカーのバックエンドを選択
	attempts, err := newAttemptsRepository(cfg, repos)
	if err != nil {
		logger.Error("failed to init login attempt backend", "error", err)
		os.Exit(1)
	}

	authManager := auth.NewManager(repos, attempts, logger)

	router := gin.New()
	router.Use(gin.Recovery())

	// セッションストアの設定（クッキー署名鍵は必須、暗号化鍵があれば封緘）
	cookieStore := cookie.NewStore(cfg.SessionKeyPairs()...)
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.CookieMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, cookieStore))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// アクセスログとエラー変換（エラー変換は保護対象ステージの外殻）
	router.Use(middleware.RequestLogger(logger), middleware.ErrorHandler(logger))

	// ルーティングの設定
	setupRoutes(router, authManager)

	// サーバーの起動
	addr := ":" + cfg.Port
	logger.Info("starting API server", "addr", addr, "mode", cfg.GinMode)
	if err := router.Run(addr); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// newAttemptsRepository は設定に応じたログイン試行リポジトリを返します。
func newAttemptsRepository(cfg *config.Config, repos store.RepositoryManager) (store.LoginAttemptRepository, error) {
	if cfg.AttemptsBackend == config.AttemptsBackendRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return store.NewRedisLoginAttemptRepository(redis.NewClient(opts)), nil
	}
	return repos.LoginAttempts(), nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "letter-box-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, authManager *auth.Manager) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログインはレートリミッターのみ。認証ガードは通さない
			authRoutes.POST("/login", authManager.RateLimit(), authManager.Login)
			authRoutes.POST("/logout", authManager.RequireAuth(), authManager.Logout)
			authRoutes.GET("/me", authManager.RequireAuth(), authManager.Me)
			authRoutes.PUT("/change-password", authManager.RequireAuth(), authManager.ChangePassword)
		}

		// ロックアウト状態の運用向けAPI。admin のみ
		admin := api.Group("/admin")
		admin.Use(authManager.RequireAuth(), middleware.RequireRole(store.RoleAdmin))
		{
			admin.GET("/login-attempts", authManager.ListLoginAttempts)
			admin.DELETE("/login-attempts/:ip", authManager.UnlockIP)
		}
	}
}
