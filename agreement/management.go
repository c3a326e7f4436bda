package agreement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/internal/tlsutil"
)

// NegotiationStatus is one poll result of a contract negotiation.
type NegotiationStatus struct {
	ID          string
	State       string
	AgreementID string
}

// TransferStatusReport is one poll result of a transfer process.
type TransferStatusReport struct {
	ID    string
	State string
}

// TransferRequest asks the peer to provision an endpoint for an agreement.
type TransferRequest struct {
	PeerAddress     string
	AssetID         string
	AgreementID     string
	CallbackAddress string
}

// DataManagement is the connector management API the negotiation sequence
// drives.
type DataManagement interface {
	// GetCatalog 查询对端目录中某资产的报价列表
	GetCatalog(ctx context.Context, peerAddress, asset string) ([]Offer, error)
	// InitiateNegotiation 发起协商，返回协商 ID
	InitiateNegotiation(ctx context.Context, peerAddress string, offer Offer) (string, error)
	// GetNegotiation 查询协商状态
	GetNegotiation(ctx context.Context, negotiationID string) (*NegotiationStatus, error)
	// GetAgreement 获取协商生成的合同
	GetAgreement(ctx context.Context, agreementID string) (*ContractAgreement, error)
	// InitiateTransfer 发起传输，返回传输进程 ID
	InitiateTransfer(ctx context.Context, req TransferRequest) (string, error)
	// GetTransfer 查询传输状态
	GetTransfer(ctx context.Context, transferID string) (*TransferStatusReport, error)
}

// 协商与传输终态
var (
	negotiationSuccess = map[string]bool{"FINALIZED": true, "CONFIRMED": true, "VERIFIED": true}
	negotiationFailure = map[string]bool{"TERMINATED": true, "DECLINED": true, "ERROR": true}
	transferSuccess    = map[string]bool{"COMPLETED": true, "STARTED": true}
	transferFailure    = map[string]bool{"TERMINATED": true, "ERROR": true, "DEPROVISIONED": true}
)

// normalizeState strips namespace prefixes such as "edc:" or "https://w3id.org/edc/v0.0.1/ns/".
func normalizeState(s string) string {
	if i := strings.LastIndexAny(s, ":/"); i >= 0 {
		s = s[i+1:]
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// =============================================================================
// 🌐 HTTP 管理 API 客户端
// =============================================================================

// ManagementConfig 管理 API 客户端配置
type ManagementConfig struct {
	// BaseURL 是连接器管理 API 的根地址，如 http://connector:8181/management
	BaseURL string
	// APIKey 通过 X-Api-Key 头发送
	APIKey string
	// Protocol 是写入请求体的数据空间协议名
	Protocol string
	// Timeout 单次管理请求超时
	Timeout time.Duration
}

// DefaultManagementConfig returns sensible defaults.
func DefaultManagementConfig() ManagementConfig {
	return ManagementConfig{
		Protocol: "dataspace-protocol-http",
		Timeout:  30 * time.Second,
	}
}

// HTTPManagement implements DataManagement against an EDC-style management API.
type HTTPManagement struct {
	config     ManagementConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPManagement creates a management API client.
func NewHTTPManagement(config ManagementConfig, logger *zap.Logger) *HTTPManagement {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Protocol == "" {
		config.Protocol = DefaultManagementConfig().Protocol
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultManagementConfig().Timeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &HTTPManagement{
		config:     config,
		httpClient: tlsutil.SecureHTTPClient(config.Timeout),
		logger:     logger.With(zap.String("component", "management_client")),
	}
}

const edcNamespace = "https://w3id.org/edc/v0.0.1/ns/"

func jsonLDContext() map[string]any {
	return map[string]any{
		"@vocab": edcNamespace,
		"odrl":   "http://www.w3.org/ns/odrl/2/",
		"dcat":   "http://www.w3.org/ns/dcat#",
	}
}

func (c *HTTPManagement) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-Api-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrManagementUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("management api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(data, 512)))
		return fmt.Errorf("%w: %s %s: status code %d", ErrManagementUnavailable, method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrManagementResponse, method, path, err)
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// oneOrMany decodes a JSON-LD value that may be an object or an array of objects.
type oneOrMany []json.RawMessage

func (o *oneOrMany) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*o = list
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		*o = nil
		return nil
	}
	*o = oneOrMany{json.RawMessage(trimmed)}
	return nil
}

type catalogResponse struct {
	Dataset     oneOrMany `json:"dcat:dataset"`
	DatasetFull oneOrMany `json:"http://www.w3.org/ns/dcat#dataset"`
}

// GetCatalog 查询对端目录，返回目标资产的全部报价
func (c *HTTPManagement) GetCatalog(ctx context.Context, peerAddress, asset string) ([]Offer, error) {
	req := map[string]any{
		"@context":            jsonLDContext(),
		"@type":               "CatalogRequest",
		"counterPartyAddress": peerAddress,
		"protocol":            c.config.Protocol,
		"querySpec": map[string]any{
			"filterExpression": []map[string]any{{
				"operandLeft":  edcNamespace + "id",
				"operator":     "=",
				"operandRight": asset,
			}},
		},
	}
	var resp catalogResponse
	if err := c.do(ctx, http.MethodPost, "/v2/catalog/request", req, &resp); err != nil {
		return nil, err
	}
	datasets := append(resp.Dataset, resp.DatasetFull...)

	var offers []Offer
	for _, raw := range datasets {
		var ds map[string]json.RawMessage
		if err := json.Unmarshal(raw, &ds); err != nil {
			return nil, fmt.Errorf("%w: dataset: %v", ErrManagementResponse, err)
		}
		var id string
		_ = json.Unmarshal(ds["@id"], &id)
		if id != "" && id != asset {
			continue
		}
		props := make(map[string]string)
		for k, v := range ds {
			var s string
			if k == "@id" || json.Unmarshal(v, &s) != nil {
				continue
			}
			props[k] = s
		}
		var policies oneOrMany
		if err := json.Unmarshal(ds["odrl:hasPolicy"], &policies); err != nil && ds["odrl:hasPolicy"] != nil {
			return nil, fmt.Errorf("%w: policy: %v", ErrManagementResponse, err)
		}
		for _, p := range policies {
			var head struct {
				ID string `json:"@id"`
			}
			if err := json.Unmarshal(p, &head); err != nil {
				return nil, fmt.Errorf("%w: policy: %v", ErrManagementResponse, err)
			}
			offers = append(offers, Offer{ID: head.ID, AssetID: asset, Policy: p, Properties: props})
		}
	}
	c.logger.Debug("catalog fetched",
		zap.String("peer", peerAddress),
		zap.String("asset", asset),
		zap.Int("offers", len(offers)))
	return offers, nil
}

type idResponse struct {
	ID string `json:"@id"`
}

// InitiateNegotiation 基于报价发起协商
func (c *HTTPManagement) InitiateNegotiation(ctx context.Context, peerAddress string, offer Offer) (string, error) {
	var policy map[string]any
	if len(offer.Policy) > 0 {
		if err := json.Unmarshal(offer.Policy, &policy); err != nil {
			return "", fmt.Errorf("invalid offer policy: %w", err)
		}
	} else {
		policy = map[string]any{"@id": offer.ID}
	}
	policy["@type"] = "odrl:Offer"
	policy["odrl:target"] = map[string]any{"@id": offer.AssetID}

	req := map[string]any{
		"@context":            jsonLDContext(),
		"@id":                 uuid.NewString(),
		"@type":               "ContractRequest",
		"counterPartyAddress": peerAddress,
		"protocol":            c.config.Protocol,
		"policy":              policy,
	}
	var resp idResponse
	if err := c.do(ctx, http.MethodPost, "/v2/contractnegotiations", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: negotiation without id", ErrManagementResponse)
	}
	return resp.ID, nil
}

type negotiationResponse struct {
	ID             string `json:"@id"`
	State          string `json:"state"`
	StateNS        string `json:"edc:state"`
	AgreementID    string `json:"contractAgreementId"`
	AgreementIDNS  string `json:"edc:contractAgreementId"`
	ErrorDetail    string `json:"errorDetail"`
	ErrorDetailsNS string `json:"edc:errorDetail"`
}

// GetNegotiation 查询协商状态
func (c *HTTPManagement) GetNegotiation(ctx context.Context, negotiationID string) (*NegotiationStatus, error) {
	var resp negotiationResponse
	if err := c.do(ctx, http.MethodGet, "/v2/contractnegotiations/"+url.PathEscape(negotiationID), nil, &resp); err != nil {
		return nil, err
	}
	status := &NegotiationStatus{ID: negotiationID, State: firstNonEmpty(resp.State, resp.StateNS), AgreementID: firstNonEmpty(resp.AgreementID, resp.AgreementIDNS)}
	if detail := firstNonEmpty(resp.ErrorDetail, resp.ErrorDetailsNS); detail != "" {
		c.logger.Debug("negotiation error detail", zap.String("negotiation_id", negotiationID), zap.String("detail", detail))
	}
	return status, nil
}

type agreementResponse struct {
	ID            string `json:"@id"`
	AssetID       string `json:"assetId"`
	AssetIDNS     string `json:"edc:assetId"`
	SigningDate   int64  `json:"contractSigningDate"`
	SigningDateNS int64  `json:"edc:contractSigningDate"`
}

// GetAgreement 获取合同
func (c *HTTPManagement) GetAgreement(ctx context.Context, agreementID string) (*ContractAgreement, error) {
	var resp agreementResponse
	if err := c.do(ctx, http.MethodGet, "/v2/contractagreements/"+url.PathEscape(agreementID), nil, &resp); err != nil {
		return nil, err
	}
	signed := resp.SigningDate
	if signed == 0 {
		signed = resp.SigningDateNS
	}
	return &ContractAgreement{
		ID:          firstNonEmpty(resp.ID, agreementID),
		AssetID:     firstNonEmpty(resp.AssetID, resp.AssetIDNS),
		SigningDate: signed,
	}, nil
}

// InitiateTransfer 发起 HTTP 拉取式传输，回调地址用于接收端点数据
func (c *HTTPManagement) InitiateTransfer(ctx context.Context, tr TransferRequest) (string, error) {
	req := map[string]any{
		"@context":            jsonLDContext(),
		"@id":                 uuid.NewString(),
		"@type":               "TransferRequest",
		"assetId":             tr.AssetID,
		"contractId":          tr.AgreementID,
		"counterPartyAddress": tr.PeerAddress,
		"connectorId":         tr.PeerAddress,
		"protocol":            c.config.Protocol,
		"transferType":        "HttpData-PULL",
		"dataDestination":     map[string]any{"type": "HttpProxy"},
		"privateProperties":   map[string]any{"receiverHttpEndpoint": tr.CallbackAddress},
		"callbackAddresses": []map[string]any{{
			"uri":           tr.CallbackAddress,
			"events":        []string{"transfer.process.started"},
			"transactional": false,
		}},
	}
	var resp idResponse
	if err := c.do(ctx, http.MethodPost, "/v2/transferprocesses", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: transfer without id", ErrManagementResponse)
	}
	return resp.ID, nil
}

type transferResponse struct {
	ID      string `json:"@id"`
	State   string `json:"state"`
	StateNS string `json:"edc:state"`
}

// GetTransfer 查询传输状态
func (c *HTTPManagement) GetTransfer(ctx context.Context, transferID string) (*TransferStatusReport, error) {
	var resp transferResponse
	if err := c.do(ctx, http.MethodGet, "/v2/transferprocesses/"+url.PathEscape(transferID), nil, &resp); err != nil {
		return nil, err
	}
	return &TransferStatusReport{ID: transferID, State: firstNonEmpty(resp.State, resp.StateNS)}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
