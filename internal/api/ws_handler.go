package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"valentinequest/internal/auth"
	"valentinequest/internal/events"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

type pubSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// WsHandler 将 Redis 上的候选人变更事件推送给已登录的管理后台。
type WsHandler struct {
	redisClient    pubSubscriber
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。allowedOrigins 为空时仅允许同源。
func NewWsHandler(redisClient pubSubscriber, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		redisClient:    redisClient,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	return slices.Contains(h.allowedOrigins, origin) || slices.Contains(h.allowedOrigins, "*")
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// HandleConnection 升级连接，等待首条 auth 消息，然后转发 AdminChannel 上的事件。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	adminID, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("admin_id", uint64(adminID)))
	log.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 读循环只用于感知客户端断开。
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.forward(ctx, conn, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var msg wsAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("decode auth payload: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		writeClose(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, errors.New("invalid auth message")
	}

	claims, err := h.authService.ValidateToken(msg.Token)
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	if claims.TokenType != auth.TokenTypeAccess {
		writeClose(conn, websocket.ClosePolicyViolation, "access token required")
		return 0, fmt.Errorf("invalid token type: %s", claims.TokenType)
	}
	if claims.MustChangePassword {
		writeClose(conn, websocket.ClosePolicyViolation, "password change required")
		return 0, errors.New("password change required")
	}
	return claims.AdminID, nil
}

func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	pubsub := h.redisClient.Subscribe(ctx, events.AdminChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			log.Debug("forwarding event to client")
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}
