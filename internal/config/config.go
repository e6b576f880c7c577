// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// ログイン試行レコードの保存先バックエンド。
const (
	AttemptsBackendPostgres = "postgres"
	AttemptsBackendRedis    = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// データベース設定
	DatabaseDSN string // PostgreSQL接続DSN

	// セッションクッキー設定
	SessionSecret        string // クッキー署名用の秘密鍵
	SessionEncryptionKey string // クッキー暗号化用の鍵（16/24/32バイト）

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ログイン試行トラッカー設定
	AttemptsBackend string // postgres または redis
	RedisURL        string // AttemptsBackend=redis の場合の接続URL
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		DatabaseDSN: getEnv("DATABASE_DSN", "postgres://localhost:5432/letterbox?sslmode=disable"),

		SessionSecret:        getEnv("SESSION_SECRET", ""),
		SessionEncryptionKey: getEnv("SESSION_ENCRYPTION_KEY", ""),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		AttemptsBackend: getEnv("ATTEMPTS_BACKEND", AttemptsBackendPostgres),
		RedisURL:        getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.AttemptsBackend {
	case AttemptsBackendPostgres, AttemptsBackendRedis:
	default:
		return fmt.Errorf("ATTEMPTS_BACKEND must be %q or %q", AttemptsBackendPostgres, AttemptsBackendRedis)
	}

	if key := c.SessionEncryptionKey; key != "" {
		switch len(key) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("SESSION_ENCRYPTION_KEY must be 16, 24 or 32 bytes")
		}
	}

	// ローカル開発では認証設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.SessionEncryptionKey == "" {
			return fmt.Errorf("SESSION_ENCRYPTION_KEY is required in release mode")
		}
		if c.AttemptsBackend == AttemptsBackendRedis && c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
	}

	return nil
}

// SessionKeyPairs はクッキーストアに渡す鍵ペアを返します。
// 暗号化鍵が設定されていれば署名に加えて内容も暗号化されます。
func (c *Config) SessionKeyPairs() [][]byte {
	if c.SessionEncryptionKey != "" {
		return [][]byte{[]byte(c.SessionSecret), []byte(c.SessionEncryptionKey)}
	}
	return [][]byte{[]byte(c.SessionSecret)}
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
