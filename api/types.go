package api

import (
	"time"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/skill"
)

// =============================================================================
// 协商类型
// =============================================================================

// NegotiationRequest asks the gateway to negotiate an asset from a peer.
// @Description 协商请求结构
type NegotiationRequest struct {
	// 对端连接器地址，空表示配置的默认对端
	Peer string `json:"peer,omitempty" example:"https://peer.example/api/v1/dsp"`
	// 资产 ID
	Asset string `json:"asset" example:"urn:example:Graph1" binding:"required"`
}

// EndpointResponse is a negotiated endpoint with its credential redacted.
// @Description 已协商端点
type EndpointResponse struct {
	Asset      string            `json:"asset"`
	Endpoint   string            `json:"endpoint"`
	AuthKey    string            `json:"authKey,omitempty"`
	AuthCode   string            `json:"authCode,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// NewEndpointResponse redacts ref into a response body.
func NewEndpointResponse(ref *agreement.EndpointReference) EndpointResponse {
	r := ref.Redacted()
	return EndpointResponse{
		Asset:      r.AssetID,
		Endpoint:   r.Endpoint,
		AuthKey:    r.AuthKey,
		AuthCode:   r.AuthCode,
		Properties: r.Properties,
	}
}

// NegotiationListResponse lists the active assets.
type NegotiationListResponse struct {
	Assets []agreement.AssetState `json:"assets"`
	Total  int                    `json:"total"`
}

// DeactivateResponse reports whether an asset was active.
type DeactivateResponse struct {
	Asset       string `json:"asset"`
	Deactivated bool   `json:"deactivated"`
}

// HistoryResponse is the ledger of one asset.
type HistoryResponse struct {
	Asset   string                  `json:"asset"`
	Entries []agreement.LedgerEntry `json:"entries"`
}

// =============================================================================
// 回调类型
// =============================================================================

// CallbackResponse acknowledges a transfer callback. Matched is false when
// no local transfer carries the correlation id.
type CallbackResponse struct {
	Matched bool `json:"matched"`
}

// =============================================================================
// 技能类型
// =============================================================================

// SkillRequest stores a skill text.
type SkillRequest struct {
	Text         string             `json:"text" binding:"required"`
	Description  string             `json:"description,omitempty"`
	Distribution skill.Distribution `json:"distribution,omitempty" example:"all"`
}

// SkillListResponse lists stored skill names.
type SkillListResponse struct {
	Skills []string `json:"skills"`
	Total  int      `json:"total"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse mirrors the error envelope written by the handlers.
// @Description 错误响应
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Target    string `json:"target,omitempty"`
}
