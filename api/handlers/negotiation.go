package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/api"
	"github.com/catenax-ng/product-agents-edc-sub000/types"
)

// =============================================================================
// 🤝 协商 Handler
// =============================================================================

// Negotiator is the part of the negotiation engine the API drives.
type Negotiator interface {
	Negotiate(ctx context.Context, peerAddress, asset string) (*agreement.EndpointReference, error)
	GetEndpoint(asset string) (*agreement.EndpointReference, bool)
	Deactivate(asset string) bool
	States() []agreement.AssetState
}

// HistorySource reads the negotiation ledger.
type HistorySource interface {
	History(ctx context.Context, asset string, limit int) ([]agreement.LedgerEntry, error)
}

// NegotiationHandler serves /api/v1/negotiations and /api/v1/endpoints.
type NegotiationHandler struct {
	negotiator  Negotiator
	history     HistorySource
	defaultPeer string
	logger      *zap.Logger
}

// NewNegotiationHandler 创建协商处理器。history 可为 nil，此时历史接口返回 503
func NewNegotiationHandler(n Negotiator, history HistorySource, defaultPeer string, logger *zap.Logger) *NegotiationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NegotiationHandler{
		negotiator:  n,
		history:     history,
		defaultPeer: defaultPeer,
		logger:      logger.With(zap.String("component", "negotiation_handler")),
	}
}

// HandleNegotiations dispatches /api/v1/negotiations by method.
func (h *NegotiationHandler) HandleNegotiations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.HandleNegotiate(w, r)
	case http.MethodGet:
		h.HandleList(w, r)
	case http.MethodDelete:
		h.HandleDeactivate(w, r)
	default:
		methodNotAllowed(w, h.logger, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// HandleNegotiate 同步协商资产并返回脱敏后的端点
// @Summary 协商资产
// @Tags 协商
// @Accept json
// @Produce json
// @Param request body api.NegotiationRequest true "协商请求"
// @Success 200 {object} api.EndpointResponse
// @Failure 409 {object} api.ErrorResponse "已有协商进行中"
// @Failure 502 {object} api.ErrorResponse "协商失败"
// @Router /api/v1/negotiations [post]
func (h *NegotiationHandler) HandleNegotiate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.NegotiationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.Asset = strings.TrimSpace(req.Asset)
	if !agreement.IsAsset(req.Asset) {
		WriteError(w, types.NewError(types.ErrValidation, "asset must be an urn").WithTarget(req.Asset), h.logger)
		return
	}
	peer := strings.TrimSpace(req.Peer)
	if peer == "" {
		peer = h.defaultPeer
	}
	if peer == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation, "peer is required when no default peer is configured", h.logger)
		return
	}

	// 缓存命中时不再协商
	if ref, ok := h.negotiator.GetEndpoint(req.Asset); ok {
		WriteSuccess(w, api.NewEndpointResponse(ref))
		return
	}

	ref, err := h.negotiator.Negotiate(r.Context(), peer, req.Asset)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewEndpointResponse(ref))
}

// HandleList 列出活动资产及其状态
// @Summary 活动协商列表
// @Tags 协商
// @Produce json
// @Success 200 {object} api.NegotiationListResponse
// @Router /api/v1/negotiations [get]
func (h *NegotiationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	states := h.negotiator.States()
	if states == nil {
		states = []agreement.AssetState{}
	}
	WriteSuccess(w, api.NegotiationListResponse{Assets: states, Total: len(states)})
}

// HandleDeactivate 停用资产
// @Summary 停用资产
// @Tags 协商
// @Produce json
// @Param asset query string true "资产 ID"
// @Success 200 {object} api.DeactivateResponse
// @Router /api/v1/negotiations [delete]
func (h *NegotiationHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.assetParam(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, api.DeactivateResponse{Asset: asset, Deactivated: h.negotiator.Deactivate(asset)})
}

// HandleEndpoint 返回缓存的有效端点
// @Summary 查询端点
// @Tags 协商
// @Produce json
// @Param asset query string true "资产 ID"
// @Success 200 {object} api.EndpointResponse
// @Failure 404 {object} api.ErrorResponse "无有效端点"
// @Router /api/v1/endpoints [get]
func (h *NegotiationHandler) HandleEndpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.logger, http.MethodGet)
		return
	}
	asset, ok := h.assetParam(w, r)
	if !ok {
		return
	}
	ref, found := h.negotiator.GetEndpoint(asset)
	if !found {
		WriteError(w, types.NewError(types.ErrNotFound, "no valid endpoint for asset").WithTarget(asset), h.logger)
		return
	}
	WriteSuccess(w, api.NewEndpointResponse(ref))
}

// HandleHistory 返回资产的账本记录
// @Summary 协商历史
// @Tags 协商
// @Produce json
// @Param asset query string true "资产 ID"
// @Param limit query int false "最大条数"
// @Success 200 {object} api.HistoryResponse
// @Router /api/v1/negotiations/history [get]
func (h *NegotiationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.logger, http.MethodGet)
		return
	}
	if h.history == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "negotiation ledger is not configured", h.logger)
		return
	}
	asset, ok := h.assetParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation, "limit must be a non-negative integer", h.logger)
			return
		}
		limit = n
	}
	entries, err := h.history.History(r.Context(), asset, limit)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "read negotiation ledger").WithCause(err), h.logger)
		return
	}
	if entries == nil {
		entries = []agreement.LedgerEntry{}
	}
	WriteSuccess(w, api.HistoryResponse{Asset: asset, Entries: entries})
}

func (h *NegotiationHandler) assetParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	asset := strings.TrimSpace(r.URL.Query().Get("asset"))
	if asset == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation, "asset query parameter is required", h.logger)
		return "", false
	}
	return asset, true
}
