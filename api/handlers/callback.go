package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/api"
)

// EndpointSink receives endpoint data delivered by a peer's transfer.
type EndpointSink interface {
	OnEndpointReady(payload agreement.CallbackPayload) bool
}

// CallbackHandler serves POST /callback/endpoint-data-reference.
type CallbackHandler struct {
	sink   EndpointSink
	logger *zap.Logger
}

// NewCallbackHandler 创建回调处理器
func NewCallbackHandler(sink EndpointSink, logger *zap.Logger) *CallbackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackHandler{sink: sink, logger: logger.With(zap.String("component", "callback_handler"))}
}

// HandleEndpointDataReference 接收对端投递的端点数据
// 未匹配任何本地传输的回调同样返回 200，matched=false
// @Summary 端点数据回调
// @Tags 回调
// @Accept json
// @Produce json
// @Success 200 {object} api.CallbackResponse
// @Router /callback/endpoint-data-reference [post]
func (h *CallbackHandler) HandleEndpointDataReference(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, h.logger, http.MethodPost)
		return
	}
	var payload agreement.CallbackPayload
	if err := DecodeJSONBodyLenient(w, r, &payload, h.logger); err != nil {
		return
	}
	matched := h.sink.OnEndpointReady(payload)
	h.logger.Debug("endpoint data reference received",
		zap.String("correlation_id", payload.Normalize().CorrelationID),
		zap.Bool("matched", matched))
	WriteJSON(w, http.StatusOK, api.CallbackResponse{Matched: matched})
}
