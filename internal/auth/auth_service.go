package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in TokenClaims.TokenType.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	tokenIssuer   = "valentinequest"
	tokenAudience = "valentinequest-admin"
	clockLeeway   = 5 * time.Second
)

// AuthService 负责管理员 JWT 的签发与校验，签名算法固定为 RS256。
type AuthService struct {
	privateKey      *rsa.PrivateKey
	parser          *jwt.Parser
	publicKey       *rsa.PublicKey
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// TokenPair 封装访问令牌与刷新令牌。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenClaims 表示 JWT 中的业务字段。刷新令牌的 jti 用作 Redis 黑名单键。
type TokenClaims struct {
	AdminID            uint   `json:"admin_id"`
	TokenType          string `json:"token_type"`
	MustChangePassword bool   `json:"must_change_password,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthService 解析 PEM 密钥并构造服务实例。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	if len(privateKeyPEM) == 0 || len(publicKeyPEM) == 0 {
		return nil, errors.New("both private and public key pem are required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	if privateKey.PublicKey.N.Cmp(publicKey.N) != 0 {
		return nil, errors.New("public key does not match private key")
	}

	return &AuthService{
		privateKey: privateKey,
		publicKey:  publicKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithAudience(tokenAudience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockLeeway),
		),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}, nil
}

// NewAuthServiceFromFiles 从磁盘读取密钥对。
func NewAuthServiceFromFiles(privateKeyPath, publicKeyPath string, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	privatePEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key %q: %w", privateKeyPath, err)
	}
	publicPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key %q: %w", publicKeyPath, err)
	}
	return NewAuthService(privatePEM, publicPEM, accessTTL, refreshTTL)
}

// GenerateTokenPair 为管理员签发一对令牌。
func (s *AuthService) GenerateTokenPair(adminID uint, mustChangePassword bool) (TokenPair, error) {
	now := time.Now()

	accessToken, err := s.issue(adminID, TokenTypeAccess, mustChangePassword, now, s.accessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := s.issue(adminID, TokenTypeRefresh, false, now, s.refreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *AuthService) issue(adminID uint, tokenType string, mustChangePassword bool, now time.Time, ttl time.Duration) (string, error) {
	claims := TokenClaims{
		AdminID:            adminID,
		TokenType:          tokenType,
		MustChangePassword: mustChangePassword,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			Subject:   strconv.FormatUint(uint64(adminID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken 解析并验证 JWT，调用方仍需检查 TokenType。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	claims := &TokenClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.AdminID == 0 {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// AccessTokenTTL 暴露访问令牌有效期。
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

// RefreshTokenTTL 暴露刷新令牌有效期。
func (s *AuthService) RefreshTokenTTL() time.Duration {
	return s.refreshTokenTTL
}
