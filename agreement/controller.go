package agreement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/internal/metrics"
)

// Config 协商引擎配置
type Config struct {
	// Timeout 是整个协商序列共享的时间预算
	Timeout time.Duration
	// PollInterval 是协商、传输、回调等待的轮询间隔
	PollInterval time.Duration
	// CallbackAddress 是对端投递端点数据的本节点回调地址
	CallbackAddress string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		PollInterval: time.Second,
	}
}

// --- 控制器选项 ---

// Option configures the Controller.
type Option func(*Controller)

// WithLedger records agreements, transfers and deactivations.
func WithLedger(l Ledger) Option {
	return func(c *Controller) { c.ledger = l }
}

// WithMetrics records negotiation metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithEventBuffer sets the per-subscriber event buffer.
func WithEventBuffer(n int) Option {
	return func(c *Controller) { c.eventBuffer = n }
}

// Controller is the agreement negotiation engine. It turns "asset X from
// peer P" into a cached, credentialed endpoint and keeps one state machine
// per asset.
type Controller struct {
	dm      DataManagement
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector
	ledger  Ledger
	now     func() time.Time

	active     *activeRegistry
	agreements *recordMap[*ContractAgreement]
	processes  *recordMap[*TransferProcess]
	endpoints  *recordMap[*EndpointReference]

	eventBuffer int
	events      *broadcaster
}

// NewController creates a negotiation engine driving dm.
func NewController(dm DataManagement, config Config, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	c := &Controller{
		dm:         dm,
		config:     config,
		logger:     logger.With(zap.String("component", "agreement_controller")),
		now:        time.Now,
		active:     newActiveRegistry(),
		agreements: newRecordMap[*ContractAgreement](),
		processes:  newRecordMap[*TransferProcess](),
		endpoints:  newRecordMap[*EndpointReference](),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = newBroadcaster(c.eventBuffer, c.logger)
	return c
}

// =============================================================================
// 🔍 端点查询
// =============================================================================

// GetEndpoint returns the cached endpoint of asset if its credential is
// still valid. An expired or unparseable credential deactivates the asset.
func (c *Controller) GetEndpoint(asset string) (*EndpointReference, bool) {
	ref, ok := c.endpoints.get(asset)
	if !ok {
		c.metrics.RecordCacheMiss("endpoint")
		return nil, false
	}
	// 与 ref 同属一次协商的记录，过期清理只删除这些指针
	agreement, _ := c.agreements.get(asset)
	process, _ := c.processes.get(asset)
	valid, err := tokenValid(ref.AuthCode, c.now())
	if err != nil {
		c.logger.Warn("endpoint credential could not be parsed, treating as expired",
			zap.String("asset", asset),
			zap.Error(err))
	}
	if !valid {
		c.logger.Info("endpoint expired, deactivating asset", zap.String("asset", asset))
		c.metrics.RecordCacheMiss("endpoint")
		c.purgeExpired(asset, ref, agreement, process)
		return nil, false
	}
	c.metrics.RecordCacheHit("endpoint")
	return ref.clone(), true
}

// =============================================================================
// 🤝 协商
// =============================================================================

// Negotiate runs the full negotiation sequence for asset against the peer's
// connector. It fails immediately if a negotiation for asset is already
// active. Once started, the sequence runs to completion, failure or the
// configured timeout; cancelling ctx does not interrupt it.
func (c *Controller) Negotiate(ctx context.Context, peerAddress, asset string) (*EndpointReference, error) {
	start := c.now()
	if !c.active.activate(asset, peerAddress, start) {
		c.metrics.RecordNegotiation("conflict", 0)
		c.logger.Warn("negotiation already active", zap.String("asset", asset))
		return nil, conflictError(asset, fmt.Errorf("%w: %s", ErrConflict, asset))
	}
	c.publish(asset, StateInactive, StateActivating, "")
	c.metrics.SetActiveAssets(c.active.len())

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
	defer cancel()

	logger := c.logger.With(zap.String("asset", asset), zap.String("peer", peerAddress))
	logger.Info("negotiation started")

	ref, err := c.run(ctx, logger, peerAddress, asset)
	if err != nil {
		outcome := "failed"
		if errors.Is(err, ErrTimeout) {
			outcome = "timeout"
		}
		c.metrics.RecordNegotiation(outcome, c.now().Sub(start))
		logger.Warn("negotiation failed", zap.Error(err))
		c.fail(ctx, asset, peerAddress, err)
		return nil, negotiationError(asset, err)
	}
	c.metrics.RecordNegotiation("success", c.now().Sub(start))
	logger.Info("negotiation completed",
		zap.String("endpoint", ref.Endpoint),
		zap.Duration("duration", c.now().Sub(start)))
	return ref, nil
}

func (c *Controller) run(ctx context.Context, logger *zap.Logger, peer, asset string) (*EndpointReference, error) {
	// (2) 目录查询，首个报价胜出
	offers, err := c.dm.GetCatalog(ctx, peer, asset)
	if err != nil {
		return nil, c.wrapIO(ctx, "catalog", err)
	}
	if len(offers) == 0 {
		return nil, fmt.Errorf("%w: %s at %s", ErrNoOffer, asset, peer)
	}
	offer := offers[0]
	if len(offers) > 1 {
		logger.Debug("multiple offers, using the first", zap.Int("offers", len(offers)), zap.String("offer", offer.ID))
	}
	if err := c.transition(asset, StateOfferDiscovered); err != nil {
		return nil, err
	}

	// (3) 发起协商
	negotiationID, err := c.dm.InitiateNegotiation(ctx, peer, offer)
	if err != nil {
		return nil, c.wrapIO(ctx, "initiate negotiation", err)
	}
	if err := c.transition(asset, StateNegotiating); err != nil {
		return nil, err
	}

	// (4) 轮询协商状态
	var agreementID string
	err = c.poll(ctx, "negotiation", func() (bool, error) {
		st, err := c.dm.GetNegotiation(ctx, negotiationID)
		if err != nil {
			return false, c.wrapIO(ctx, "negotiation status", err)
		}
		state := normalizeState(st.State)
		logger.Debug("negotiation status", zap.String("negotiation_id", negotiationID), zap.String("state", state))
		switch {
		case negotiationSuccess[state]:
			agreementID = st.AgreementID
			return true, nil
		case negotiationFailure[state]:
			return false, fmt.Errorf("%w: negotiation %s ended in %s", ErrRejected, negotiationID, state)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if agreementID == "" {
		return nil, fmt.Errorf("%w: negotiation %s finalized without agreement id", ErrRejected, negotiationID)
	}

	// (5) 获取合同
	agreement, err := c.dm.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, c.wrapIO(ctx, "agreement", err)
	}
	if agreement.AssetID == "" {
		agreement.AssetID = asset
	}
	c.agreements.put(asset, agreement)
	c.record(ctx, LedgerEntry{AssetID: asset, Kind: LedgerAgreement, Peer: peer, Reference: agreement.ID,
		Detail: fmt.Sprintf("offer=%s signed=%d", offer.ID, agreement.SigningDate)})
	if err := c.transition(asset, StateAgreed); err != nil {
		return nil, err
	}

	// (6) 发起传输
	transferID, err := c.dm.InitiateTransfer(ctx, TransferRequest{
		PeerAddress:     peer,
		AssetID:         asset,
		AgreementID:     agreement.ID,
		CallbackAddress: c.config.CallbackAddress,
	})
	if err != nil {
		return nil, c.wrapIO(ctx, "initiate transfer", err)
	}
	c.processes.put(asset, &TransferProcess{ID: transferID, AssetID: asset, AgreementID: agreement.ID, Status: TransferPending})
	c.record(ctx, LedgerEntry{AssetID: asset, Kind: LedgerTransfer, Peer: peer, Reference: transferID})
	if err := c.transition(asset, StateProvisioning); err != nil {
		return nil, err
	}

	// (7) 轮询传输状态
	err = c.poll(ctx, "transfer", func() (bool, error) {
		st, err := c.dm.GetTransfer(ctx, transferID)
		if err != nil {
			return false, c.wrapIO(ctx, "transfer status", err)
		}
		state := normalizeState(st.State)
		logger.Debug("transfer status", zap.String("transfer_id", transferID), zap.String("state", state))
		switch {
		case transferSuccess[state]:
			return true, nil
		case transferFailure[state]:
			return false, fmt.Errorf("%w: transfer %s ended in %s", ErrRejected, transferID, state)
		}
		return false, nil
	})
	if err != nil {
		c.processes.update(asset, func(p *TransferProcess) *TransferProcess {
			cp := *p
			cp.Status = TransferFailed
			return &cp
		})
		return nil, err
	}
	c.processes.update(asset, func(p *TransferProcess) *TransferProcess {
		cp := *p
		cp.Status = TransferCompleted
		return &cp
	})
	if err := c.transition(asset, StateTransferred); err != nil {
		return nil, err
	}

	// (8) 等待回调写入端点，回调可能早于或晚于传输状态轮询
	err = c.poll(ctx, "endpoint callback", func() (bool, error) {
		_, ok := c.endpoints.get(asset)
		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	// (9) 合并报价属性，已有属性不被覆盖
	c.endpoints.update(asset, func(ref *EndpointReference) *EndpointReference {
		cp := ref.clone()
		if cp.Properties == nil {
			cp.Properties = make(map[string]string, len(offer.Properties))
		}
		for k, v := range offer.Properties {
			if _, exists := cp.Properties[k]; !exists {
				cp.Properties[k] = v
			}
		}
		return cp
	})
	if err := c.transition(asset, StateEndpointReady); err != nil {
		return nil, err
	}

	// (10) 走普通查询路径返回
	ref, ok := c.GetEndpoint(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEndpoint, asset)
	}
	c.record(ctx, LedgerEntry{AssetID: asset, Kind: LedgerEndpoint, Peer: peer, Reference: ref.ID, Detail: ref.Endpoint})
	return ref, nil
}

// poll calls check every PollInterval until it reports done, fails, or the
// negotiation budget runs out.
func (c *Controller) poll(ctx context.Context, what string, check func() (bool, error)) error {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %s", ErrTimeout, what)
		case <-ticker.C:
		}
	}
}

func (c *Controller) wrapIO(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, step, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func (c *Controller) transition(asset string, to State) error {
	from, ok := c.active.transition(asset, to, c.now())
	if !ok {
		if from == StateInactive {
			return fmt.Errorf("%w: %s", ErrDeactivated, asset)
		}
		return ErrInvalidTransition{AssetID: asset, From: from, To: to}
	}
	c.publish(asset, from, to, "")
	return nil
}

func (c *Controller) fail(ctx context.Context, asset, peer string, cause error) {
	if from, ok := c.active.transition(asset, StateFailed, c.now()); ok {
		c.publish(asset, from, StateFailed, cause.Error())
	}
	c.record(ctx, LedgerEntry{AssetID: asset, Kind: LedgerFailure, Peer: peer, Detail: cause.Error()})
	c.deactivate(asset, "negotiation failed")
}

// =============================================================================
// 📬 回调与停用
// =============================================================================

// OnEndpointReady stores the endpoint carried by a transfer callback under
// the asset whose transfer process matches the correlation id. Callbacks
// without a match belong to some other node and are ignored.
func (c *Controller) OnEndpointReady(payload CallbackPayload) bool {
	p := payload.Normalize()
	if p.CorrelationID == "" {
		return false
	}
	asset, ok := c.processes.find(func(tp *TransferProcess) bool { return tp.ID == p.CorrelationID })
	if !ok || c.active.state(asset) == StateInactive {
		c.logger.Debug("callback without matching transfer", zap.String("correlation_id", p.CorrelationID))
		return false
	}
	props := make(map[string]string, len(p.Properties))
	for k, v := range p.Properties {
		props[k] = v
	}
	c.endpoints.put(asset, &EndpointReference{
		ID:         p.CorrelationID,
		AssetID:    asset,
		Endpoint:   p.EndpointURL,
		AuthKey:    p.AuthHeaderName,
		AuthCode:   p.AuthHeaderValue,
		Properties: props,
	})
	c.logger.Info("endpoint received",
		zap.String("asset", asset),
		zap.String("correlation_id", p.CorrelationID),
		zap.String("endpoint", p.EndpointURL))
	return true
}

// purgeExpired removes exactly the records that were validated as expired.
// A concurrent deactivation or a renegotiation that already replaced them
// is left untouched.
func (c *Controller) purgeExpired(asset string, ref *EndpointReference, agreement *ContractAgreement, process *TransferProcess) {
	if !c.endpoints.deleteIf(asset, func(cur *EndpointReference) bool { return cur == ref }) {
		return
	}
	if agreement != nil {
		c.agreements.deleteIf(asset, func(cur *ContractAgreement) bool { return cur == agreement })
	}
	if process != nil {
		c.processes.deleteIf(asset, func(cur *TransferProcess) bool { return cur == process })
	}
	if !c.active.removeIf(asset, StateEndpointReady) {
		return
	}
	c.publish(asset, StateEndpointReady, StateInactive, "")
	c.metrics.SetActiveAssets(c.active.len())
	c.record(context.Background(), LedgerEntry{AssetID: asset, Kind: LedgerDeactivation, Detail: "endpoint expired"})
	c.logger.Debug("asset deactivated", zap.String("asset", asset), zap.String("reason", "endpoint expired"))
}

// Deactivate drops the agreement, transfer and endpoint of asset and
// removes it from the active set.
func (c *Controller) Deactivate(asset string) bool {
	return c.deactivate(asset, "explicit deactivation")
}

func (c *Controller) deactivate(asset, reason string) bool {
	c.endpoints.delete(asset)
	c.processes.delete(asset)
	c.agreements.delete(asset)
	from, ok := c.active.remove(asset)
	if !ok {
		return false
	}
	c.publish(asset, from, StateInactive, "")
	c.metrics.SetActiveAssets(c.active.len())
	c.record(context.Background(), LedgerEntry{AssetID: asset, Kind: LedgerDeactivation, Detail: reason})
	c.logger.Debug("asset deactivated", zap.String("asset", asset), zap.String("reason", reason))
	return true
}

// =============================================================================
// 📡 状态与事件
// =============================================================================

// States returns a snapshot of the active assets.
func (c *Controller) States() []AssetState {
	return c.active.snapshot()
}

// State returns the current state of asset.
func (c *Controller) State(asset string) State {
	return c.active.state(asset)
}

// Agreement returns the agreement held for asset.
func (c *Controller) Agreement(asset string) (*ContractAgreement, bool) {
	a, ok := c.agreements.get(asset)
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// Subscribe registers a state change listener. The channel is closed by
// Unsubscribe.
func (c *Controller) Subscribe() (string, <-chan Event) {
	return c.events.subscribe()
}

// Unsubscribe removes a listener registered by Subscribe.
func (c *Controller) Unsubscribe(id string) {
	c.events.unsubscribe(id)
}

func (c *Controller) publish(asset string, from, to State, errMsg string) {
	c.metrics.RecordNegotiationTransition(string(from), string(to))
	c.events.publish(Event{AssetID: asset, From: from, To: to, Time: c.now(), Error: errMsg})
}

func (c *Controller) record(ctx context.Context, entry LedgerEntry) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.Warn("ledger write failed",
			zap.String("asset", entry.AssetID),
			zap.String("kind", string(entry.Kind)),
			zap.Error(err))
	}
}
