// Package auth は認証コア（パスワード検証、セッション、ログイン制限、
// HTTPハンドラー）を提供します。
package auth

import "golang.org/x/crypto/bcrypt"

// bcrypt のコストファクター。検証一回に数十ミリ秒かかる程度に設定。
const bcryptCost = 12

// 最低パスワード長。
const minPasswordLength = 8

// HashPassword は平文パスワードを bcrypt でハッシュ化します。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword は平文パスワードとハッシュを照合します。
// 壊れたハッシュに対しても panic せず false を返します。
func VerifyPassword(password string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength はパスワードが強度ポリシー（8文字以上）を
// 満たすかを返します。
func ValidatePasswordStrength(password string) bool {
	return len(password) >= minPasswordLength
}
