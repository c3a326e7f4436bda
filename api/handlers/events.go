package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/types"
)

// =============================================================================
// 📡 协商事件 WebSocket
// =============================================================================

// EventSource publishes negotiation state changes.
type EventSource interface {
	Subscribe() (string, <-chan agreement.Event)
	Unsubscribe(id string)
}

// EventStreamConfig 事件流配置
type EventStreamConfig struct {
	// PingInterval 心跳间隔，0 关闭心跳
	PingInterval time.Duration
	// WriteTimeout 单条消息写超时
	WriteTimeout time.Duration
	// OriginPatterns 允许的跨域来源
	OriginPatterns []string
}

// DefaultEventStreamConfig 返回默认配置
func DefaultEventStreamConfig() EventStreamConfig {
	return EventStreamConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// EventHandler streams negotiation events over websocket.
type EventHandler struct {
	source EventSource
	config EventStreamConfig
	logger *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewEventHandler 创建事件流处理器
func NewEventHandler(source EventSource, config EventStreamConfig, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultEventStreamConfig().WriteTimeout
	}
	return &EventHandler{
		source: source,
		config: config,
		logger: logger.With(zap.String("component", "event_stream")),
		done:   make(chan struct{}),
	}
}

// HandleEvents 升级为 websocket 并推送状态变化，直到客户端断开或服务关闭
// @Summary 协商事件流
// @Tags 协商
// @Router /api/v1/negotiations/events [get]
func (h *EventHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "event stream is shutting down", h.logger)
		return
	default:
	}

	// 长连接不受服务器写超时约束
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.config.OriginPatterns})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	h.wg.Add(1)
	defer h.wg.Done()

	id, events := h.source.Subscribe()
	defer h.source.Unsubscribe(id)

	logger := h.logger.With(zap.String("subscriber", id))
	logger.Debug("event subscriber connected", zap.String("remote", r.RemoteAddr))

	// 只写不读，CloseRead 负责处理控制帧并在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())

	var ping <-chan time.Time
	if h.config.PingInterval > 0 {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("event subscriber disconnected")
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				logger.Debug("event write failed", zap.Error(err))
				return
			}
		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				logger.Debug("event subscriber ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *EventHandler) write(ctx context.Context, conn *websocket.Conn, ev agreement.Event) error {
	wctx, cancel := context.WithTimeout(ctx, h.config.WriteTimeout)
	defer cancel()
	err := wsjson.Write(wctx, conn, ev)
	if errors.Is(err, context.DeadlineExceeded) {
		_ = conn.Close(websocket.StatusPolicyViolation, "slow consumer")
	}
	return err
}

// Close 关闭所有事件流连接；被劫持的连接不受 http.Server.Shutdown 管理
func (h *EventHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}
