package federation

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/sparql"
)

// EndpointProvider hands out negotiated endpoints. *agreement.Controller
// implements it.
type EndpointProvider interface {
	GetEndpoint(asset string) (*agreement.EndpointReference, bool)
	Negotiate(ctx context.Context, peerAddress, asset string) (*agreement.EndpointReference, error)
}

// SkillLookup reports whether a skill is stored on this node.
type SkillLookup interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Call is one resolved service invocation. Credentials live on the call only
// and are never written back into the plan.
type Call struct {
	Target   string // resolved target text
	Scheme   string
	Local    bool
	Skill    bool
	Asset    string
	Peer     string
	URL      string
	AuthKey  string
	AuthCode string
	Params   url.Values

	negotiate bool
}

// Host returns the host the call goes to, used for per-peer limits.
func (c *Call) Host() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// RewriterConfig configures target resolution.
type RewriterConfig struct {
	// DefaultPeer replaces an empty peer in edc/edcs targets.
	DefaultPeer string
	// LocalGraphs are asset ids served by the local store.
	LocalGraphs []string
	// Assets filters the assets that may be negotiated.
	Assets Patterns
}

// Rewriter resolves SERVICE targets into concrete calls.
type Rewriter struct {
	endpoints   EndpointProvider
	skills      SkillLookup
	config      RewriterConfig
	localGraphs map[string]struct{}
	logger      *zap.Logger
}

// NewRewriter creates a rewriter. skills may be nil when the node offers no
// skills.
func NewRewriter(endpoints EndpointProvider, skills SkillLookup, config RewriterConfig, logger *zap.Logger) *Rewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	graphs := make(map[string]struct{}, len(config.LocalGraphs))
	for _, g := range config.LocalGraphs {
		graphs[g] = struct{}{}
	}
	return &Rewriter{
		endpoints:   endpoints,
		skills:      skills,
		config:      config,
		localGraphs: graphs,
		logger:      logger.With(zap.String("component", "rewriter")),
	}
}

// Resolve resolves svc under binding, negotiating an endpoint when the target
// requires one.
func (r *Rewriter) Resolve(ctx context.Context, svc *sparql.Service, binding sparql.Binding) (*Call, error) {
	call, err := r.Plan(ctx, svc, binding)
	if err != nil {
		return nil, err
	}
	if err := r.Bind(ctx, call); err != nil {
		return nil, err
	}
	return call, nil
}

// Plan performs every check that needs no peer: target parsing, asset
// inference and asset patterns. The returned call still lacks its endpoint
// when it targets a negotiated asset; see Bind.
func (r *Rewriter) Plan(ctx context.Context, svc *sparql.Service, binding sparql.Binding) (*Call, error) {
	text, ok := targetText(svc.Target, binding)
	if !ok {
		return nil, validationError(fmt.Errorf("%w: %s", ErrUnboundTarget, svc.Target), svc.Target.String())
	}

	if agreement.IsAsset(text) {
		local, err := r.isLocal(ctx, text)
		if err != nil {
			return nil, err
		}
		if !local {
			return nil, validationError(fmt.Errorf("%w: %s", ErrUnknownAsset, text), text)
		}
		return &Call{Target: text, Local: true, Asset: text, Skill: agreement.IsSkill(text)}, nil
	}

	t, err := ParseTarget(text)
	if err != nil {
		return nil, validationError(err, text)
	}

	if !t.Negotiated() {
		params := cloneValues(t.Params)
		if t.Asset != "" {
			params.Set("asset", t.Asset)
		}
		u, err := withParams(t.Scheme+"://"+t.Peer, params)
		if err != nil {
			return nil, validationError(fmt.Errorf("%w: %v", ErrInvalidTarget, err), text)
		}
		return &Call{
			Target: text,
			Scheme: t.Scheme,
			Asset:  t.Asset,
			Skill:  agreement.IsSkill(t.Asset),
			URL:    u,
		}, nil
	}

	asset := t.Asset
	if asset == "" {
		if asset, err = inferAsset(svc.Sub, binding); err != nil {
			return nil, validationError(err, text)
		}
	}
	if !r.config.Assets.Permits(asset) {
		return nil, validationError(fmt.Errorf("%w: %s", ErrAssetDenied, asset), text)
	}
	peer := t.PeerURL(r.config.DefaultPeer)
	if peer == "" {
		return nil, validationError(fmt.Errorf("%w: %q names no peer and no default peer is configured", ErrInvalidTarget, text), text)
	}
	return &Call{
		Target:    text,
		Scheme:    t.Scheme,
		Asset:     asset,
		Skill:     agreement.IsSkill(asset),
		Peer:      peer,
		Params:    t.Params,
		negotiate: true,
	}, nil
}

// Bind attaches a negotiated endpoint and credential to call. It is a no-op
// for local and direct calls.
func (r *Rewriter) Bind(ctx context.Context, call *Call) error {
	if !call.negotiate || call.URL != "" {
		return nil
	}
	if r.endpoints == nil {
		return upstreamError(fmt.Errorf("no negotiation engine for asset %s", call.Asset), call.Target)
	}
	ref, ok := r.endpoints.GetEndpoint(call.Asset)
	if !ok {
		r.logger.Debug("negotiating endpoint",
			zap.String("asset", call.Asset),
			zap.String("peer", call.Peer))
		var err error
		if ref, err = r.endpoints.Negotiate(ctx, call.Peer, call.Asset); err != nil {
			return err
		}
	}
	u, err := withParams(ref.Endpoint, call.Params)
	if err != nil {
		return upstreamError(fmt.Errorf("endpoint %q: %w", ref.Endpoint, err), call.Target)
	}
	call.URL = u
	call.AuthKey = ref.AuthKey
	call.AuthCode = ref.AuthCode
	return nil
}

func (r *Rewriter) isLocal(ctx context.Context, asset string) (bool, error) {
	if _, ok := r.localGraphs[asset]; ok {
		return true, nil
	}
	if r.skills == nil || !agreement.IsSkill(asset) {
		return false, nil
	}
	ok, err := r.skills.Exists(ctx, asset)
	if err != nil {
		return false, fmt.Errorf("lookup skill %s: %w", asset, err)
	}
	return ok, nil
}

// targetText resolves the service target to its lexical value.
func targetText(target sparql.Term, binding sparql.Binding) (string, bool) {
	t, ok := binding.Resolve(target)
	if !ok {
		return "", false
	}
	switch t.Kind {
	case sparql.KindIRI, sparql.KindLiteral:
		return t.Value, t.Value != ""
	default:
		return "", false
	}
}

// inferAsset derives the asset from the GRAPH names of sub. Exactly one
// distinct name must be known under binding.
func inferAsset(sub sparql.Node, binding sparql.Binding) (string, error) {
	seen := make(map[string]struct{})
	for _, name := range sparql.GraphNames(sub) {
		if t, ok := binding.Resolve(name); ok && t.Kind == sparql.KindIRI {
			seen[t.Value] = struct{}{}
		}
	}
	if len(seen) != 1 {
		names := make([]string, 0, len(seen))
		for n := range seen {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w: found %d graph names %v", ErrAmbiguousAsset, len(seen), names)
	}
	for n := range seen {
		return n, nil
	}
	return "", nil
}

// graphVariables are the variables used as graph names in sub; bindings that
// differ in them may infer different assets.
func graphVariables(sub sparql.Node) []string {
	var vars []string
	for _, name := range sparql.GraphNames(sub) {
		if name.IsVariable() {
			vars = append(vars, name.Value)
		}
	}
	sort.Strings(vars)
	return vars
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
