package agreement

import "fmt"

// State 定义资产协商生命周期状态
type State string

const (
	StateInactive        State = "INACTIVE"
	StateActivating      State = "ACTIVATING"
	StateOfferDiscovered State = "OFFER_DISCOVERED"
	StateNegotiating     State = "NEGOTIATING"
	StateAgreed          State = "AGREED"
	StateProvisioning    State = "PROVISIONING"
	StateTransferred     State = "TRANSFERRED"
	StateEndpointReady   State = "ENDPOINT_READY" // persists until eviction
	StateFailed          State = "FAILED"
)

// validTransitions 定义合法的状态转换，严格顺序，不允许回退
var validTransitions = map[State][]State{
	StateInactive:        {StateActivating},
	StateActivating:      {StateOfferDiscovered, StateFailed},
	StateOfferDiscovered: {StateNegotiating, StateFailed},
	StateNegotiating:     {StateAgreed, StateFailed},
	StateAgreed:          {StateProvisioning, StateFailed},
	StateProvisioning:    {StateTransferred, StateFailed},
	StateTransferred:     {StateEndpointReady, StateFailed},
	StateEndpointReady:   {StateInactive},
	StateFailed:          {StateInactive},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	AssetID string
	From    State
	To      State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("asset %s: invalid state transition: %s -> %s", e.AssetID, e.From, e.To)
}
