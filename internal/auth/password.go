package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// 管理员密码长度限制。bcrypt 只使用前 72 字节，超出部分会被静默忽略。
const (
	MinPasswordLength = 12
	MaxPasswordBytes  = 72
)

var (
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong   = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
	ErrPasswordTooSimple = errors.New("password must mix letters with digits or symbols")
	ErrPasswordUnchanged = errors.New("new password must be different from current password")
)

// HashPassword 使用 bcrypt 生成密码哈希。
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash 校验密码是否匹配哈希。
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateNewPassword 检查改密请求中的新密码。
func ValidateNewPassword(current, next string) error {
	trimmed := strings.TrimSpace(next)
	switch {
	case len([]rune(trimmed)) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(next) > MaxPasswordBytes:
		return ErrPasswordTooLong
	case trimmed == strings.TrimSpace(current):
		return ErrPasswordUnchanged
	}

	var letters, others bool
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			letters = true
		} else if !unicode.IsSpace(r) {
			others = true
		}
	}
	if !letters || !others {
		return ErrPasswordTooSimple
	}
	return nil
}

// GenerateRandomPassword 生成一次性初始密码。
func GenerateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
