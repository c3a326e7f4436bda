package agreement

import (
	"encoding/json"
	"time"
)

// Offer is one contract offer returned by a peer's catalog for an asset.
type Offer struct {
	ID         string            `json:"id"`
	AssetID    string            `json:"assetId"`
	Policy     json.RawMessage   `json:"policy,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ContractAgreement is the result of a finalized negotiation.
type ContractAgreement struct {
	ID          string `json:"id"`
	AssetID     string `json:"assetId"`
	SigningDate int64  `json:"contractSigningDate"`
}

// TransferStatus 传输进程状态
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// TransferProcess is the provisioning record following an agreement.
type TransferProcess struct {
	ID          string         `json:"id"`
	AssetID     string         `json:"assetId"`
	AgreementID string         `json:"agreementId"`
	Status      TransferStatus `json:"status"`
}

// EndpointReference grants temporary access to a negotiated asset. AuthCode
// is a signed token whose exp claim bounds the reference's validity.
type EndpointReference struct {
	ID         string            `json:"id"`
	AssetID    string            `json:"assetId"`
	Endpoint   string            `json:"endpoint"`
	AuthKey    string            `json:"authKey"`
	AuthCode   string            `json:"authCode"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (r *EndpointReference) clone() *EndpointReference {
	cp := *r
	if r.Properties != nil {
		cp.Properties = make(map[string]string, len(r.Properties))
		for k, v := range r.Properties {
			cp.Properties[k] = v
		}
	}
	return &cp
}

// Redacted returns a copy without the credential value.
func (r *EndpointReference) Redacted() *EndpointReference {
	cp := r.clone()
	if cp.AuthCode != "" {
		cp.AuthCode = "***"
	}
	return cp
}

// CallbackPayload is the body a peer posts when a transfer's endpoint is
// ready. Both the gateway field names and the EDC aliases are accepted.
type CallbackPayload struct {
	CorrelationID   string            `json:"correlationId,omitempty"`
	EndpointURL     string            `json:"endpointUrl,omitempty"`
	AuthHeaderName  string            `json:"authHeaderName,omitempty"`
	AuthHeaderValue string            `json:"authHeaderValue,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`

	ID       string `json:"id,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	AuthKey  string `json:"authKey,omitempty"`
	AuthCode string `json:"authCode,omitempty"`
}

// Normalize folds the alias fields into the primary ones.
func (p CallbackPayload) Normalize() CallbackPayload {
	if p.CorrelationID == "" {
		p.CorrelationID = p.ID
	}
	if p.EndpointURL == "" {
		p.EndpointURL = p.Endpoint
	}
	if p.AuthHeaderName == "" {
		p.AuthHeaderName = p.AuthKey
	}
	if p.AuthHeaderValue == "" {
		p.AuthHeaderValue = p.AuthCode
	}
	p.ID, p.Endpoint, p.AuthKey, p.AuthCode = "", "", "", ""
	return p
}

// AssetState is a snapshot entry of the active-asset set.
type AssetState struct {
	AssetID string    `json:"assetId"`
	State   State     `json:"state"`
	Since   time.Time `json:"since"`
}

// Event reports one state change of an asset.
type Event struct {
	AssetID string    `json:"assetId"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Time    time.Time `json:"time"`
	Error   string    `json:"error,omitempty"`
}
