package agreement

import (
	"errors"
	"net/http"

	"github.com/catenax-ng/product-agents-edc-sub000/types"
)

// 协商错误
var (
	// ErrConflict 表示该资产已有协商在进行中
	ErrConflict = errors.New("agreement: negotiation already active for asset")
	// ErrNoOffer 表示对端目录中没有该资产的报价
	ErrNoOffer = errors.New("agreement: no offer for asset")
	// ErrRejected 表示协商或传输进入失败终态
	ErrRejected = errors.New("agreement: negotiation or transfer rejected")
	// ErrTimeout 表示整体协商时间预算耗尽
	ErrTimeout = errors.New("agreement: negotiation timed out")
	// ErrDeactivated 表示协商过程中资产被外部停用
	ErrDeactivated = errors.New("agreement: asset deactivated during negotiation")
	// ErrInvalidEndpoint 表示回调得到的端点无效或已过期
	ErrInvalidEndpoint = errors.New("agreement: endpoint invalid or expired")
)

// 管理 API 错误
var (
	ErrManagementUnavailable = errors.New("agreement: management api unavailable")
	ErrManagementResponse    = errors.New("agreement: malformed management api response")
)

func conflictError(asset string, cause error) *types.Error {
	return types.NewError(types.ErrNegotiationConflict, "negotiation already in flight").
		WithTarget(asset).
		WithHTTPStatus(http.StatusConflict).
		WithRetryable(true).
		WithCause(cause)
}

func negotiationError(asset string, cause error) *types.Error {
	if errors.Is(cause, ErrTimeout) {
		return types.NewError(types.ErrNegotiationTimeout, "negotiation did not complete in time").
			WithTarget(asset).
			WithHTTPStatus(http.StatusGatewayTimeout).
			WithRetryable(true).
			WithCause(cause)
	}
	return types.NewError(types.ErrNegotiationFailed, "negotiation failed").
		WithTarget(asset).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithCause(cause)
}
