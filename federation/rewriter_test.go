package federation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
	"github.com/catenax-ng/product-agents-edc-sub000/sparql"
	"github.com/catenax-ng/product-agents-edc-sub000/types"
)

// fakeEndpoints hands out a fixed endpoint, negotiating on first use.
type fakeEndpoints struct {
	endpoint     string
	negotiateErr error
	cached       atomic.Bool
	negotiations atomic.Int32
	lastPeer     atomic.Value
}

func (f *fakeEndpoints) GetEndpoint(asset string) (*agreement.EndpointReference, bool) {
	if !f.cached.Load() {
		return nil, false
	}
	return f.ref(asset), true
}

func (f *fakeEndpoints) Negotiate(ctx context.Context, peer, asset string) (*agreement.EndpointReference, error) {
	f.negotiations.Add(1)
	f.lastPeer.Store(peer)
	if f.negotiateErr != nil {
		return nil, f.negotiateErr
	}
	f.cached.Store(true)
	return f.ref(asset), nil
}

func (f *fakeEndpoints) ref(asset string) *agreement.EndpointReference {
	return &agreement.EndpointReference{AssetID: asset, Endpoint: f.endpoint, AuthKey: "Authorization", AuthCode: "token-" + asset}
}

type fakeSkills map[string]bool

func (s fakeSkills) Exists(_ context.Context, name string) (bool, error) { return s[name], nil }

func graphService(target sparql.Term, graphs ...sparql.Term) *sparql.Service {
	var sub sparql.Node = &sparql.BGP{Triples: []sparql.Triple{{S: sparql.Var("s"), P: sparql.IRI("urn:p"), O: sparql.Var("o")}}}
	if len(graphs) > 0 {
		var nodes []sparql.Node
		for _, g := range graphs {
			nodes = append(nodes, &sparql.Graph{Name: g, Sub: sub})
		}
		sub = &sparql.Sequence{Nodes: nodes}
	}
	return &sparql.Service{Target: target, Sub: sub}
}

func TestParseTarget(t *testing.T) {
	tgt, err := ParseTarget("edcs://connector.example.com/api/v1/dsp#urn:example:Graph1?timeout=5")
	require.NoError(t, err)
	assert.Equal(t, SchemeEDCS, tgt.Scheme)
	assert.Equal(t, "connector.example.com/api/v1/dsp", tgt.Peer)
	assert.Equal(t, "urn:example:Graph1", tgt.Asset)
	assert.Equal(t, "5", tgt.Params.Get("timeout"))
	assert.True(t, tgt.Negotiated())
	assert.Equal(t, "https://connector.example.com/api/v1/dsp", tgt.PeerURL("http://default"))

	tgt, err = ParseTarget("edc://?a=1#urn:x")
	require.NoError(t, err)
	assert.Empty(t, tgt.Peer)
	assert.Equal(t, "urn:x", tgt.Asset)
	assert.Equal(t, "1", tgt.Params.Get("a"))
	assert.Equal(t, "http://default", tgt.PeerURL("http://default"))

	tgt, err = ParseTarget("HTTP://peer/sparql")
	require.NoError(t, err)
	assert.Equal(t, SchemeHTTP, tgt.Scheme)
	assert.False(t, tgt.Negotiated())

	_, err = ParseTarget("ftp://peer")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = ParseTarget("no-scheme")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestRewriter_InfersAssetFromSingleGraph(t *testing.T) {
	endpoints := &fakeEndpoints{endpoint: "https://provider/data"}
	r := NewRewriter(endpoints, nil, RewriterConfig{DefaultPeer: "http://default-peer"}, zaptest.NewLogger(t))

	svc := graphService(sparql.IRI("edc://"), sparql.IRI("urn:example:Graph1"))
	call, err := r.Resolve(context.Background(), svc, sparql.Binding{})
	require.NoError(t, err)
	assert.Equal(t, "urn:example:Graph1", call.Asset)
	assert.Equal(t, "https://provider/data", call.URL)
	assert.Equal(t, "token-urn:example:Graph1", call.AuthCode)
	assert.Equal(t, "http://default-peer", endpoints.lastPeer.Load())
	assert.Equal(t, int32(1), endpoints.negotiations.Load())

	// the cached endpoint is reused
	_, err = r.Resolve(context.Background(), svc, sparql.Binding{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), endpoints.negotiations.Load())
}

func TestRewriter_GraphVariableResolvedThroughBinding(t *testing.T) {
	r := NewRewriter(&fakeEndpoints{endpoint: "https://provider/data"}, nil, RewriterConfig{}, nil)
	svc := graphService(sparql.IRI("edc://peer"), sparql.Var("g"))

	b := sparql.NewBinding(map[string]sparql.Term{"g": sparql.IRI("urn:example:Graph2")})
	call, err := r.Resolve(context.Background(), svc, b)
	require.NoError(t, err)
	assert.Equal(t, "urn:example:Graph2", call.Asset)
}

func TestRewriter_AmbiguousAsset(t *testing.T) {
	endpoints := &fakeEndpoints{endpoint: "https://provider/data"}
	r := NewRewriter(endpoints, nil, RewriterConfig{DefaultPeer: "http://peer"}, nil)

	two := graphService(sparql.IRI("edc://"), sparql.IRI("urn:example:Graph1"), sparql.IRI("urn:example:Graph2"))
	_, err := r.Resolve(context.Background(), two, sparql.Binding{})
	assert.ErrorIs(t, err, ErrAmbiguousAsset)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	none := graphService(sparql.IRI("edc://"))
	_, err = r.Resolve(context.Background(), none, sparql.Binding{})
	assert.ErrorIs(t, err, ErrAmbiguousAsset)

	assert.Zero(t, endpoints.negotiations.Load(), "validation happens before negotiation")
}

func TestRewriter_ExplicitAssetWins(t *testing.T) {
	r := NewRewriter(&fakeEndpoints{endpoint: "https://provider/data?x=1"}, nil, RewriterConfig{}, nil)
	svc := graphService(sparql.IRI("edc://peer#urn:example:Graph3?limit=10"), sparql.IRI("urn:example:Graph1"), sparql.IRI("urn:example:Graph2"))

	call, err := r.Resolve(context.Background(), svc, sparql.Binding{})
	require.NoError(t, err)
	assert.Equal(t, "urn:example:Graph3", call.Asset)
	assert.Equal(t, "https://provider/data?limit=10&x=1", call.URL, "residual params are carried onto the endpoint")
}

func TestRewriter_AssetPatterns(t *testing.T) {
	assets, err := CompilePatterns(`^urn:example:.*`, `Secret`)
	require.NoError(t, err)
	endpoints := &fakeEndpoints{endpoint: "https://provider/data"}
	r := NewRewriter(endpoints, nil, RewriterConfig{Assets: assets}, nil)

	_, err = r.Resolve(context.Background(), graphService(sparql.IRI("edc://peer#urn:example:SecretGraph")), sparql.Binding{})
	assert.ErrorIs(t, err, ErrAssetDenied)
	assert.True(t, types.IsErrorCode(err, types.ErrForbidden))

	_, err = r.Resolve(context.Background(), graphService(sparql.IRI("edc://peer#urn:other:Graph")), sparql.Binding{})
	assert.ErrorIs(t, err, ErrAssetDenied)
	assert.Zero(t, endpoints.negotiations.Load())
}

func TestRewriter_LocalAndDirectTargets(t *testing.T) {
	r := NewRewriter(nil, fakeSkills{"urn:cx:Skill:consumer:Lifetime": true}, RewriterConfig{LocalGraphs: []string{"urn:local:Graph"}}, nil)

	call, err := r.Resolve(context.Background(), graphService(sparql.IRI("urn:local:Graph")), sparql.Binding{})
	require.NoError(t, err)
	assert.True(t, call.Local)
	assert.False(t, call.Skill)

	call, err = r.Resolve(context.Background(), graphService(sparql.IRI("urn:cx:Skill:consumer:Lifetime")), sparql.Binding{})
	require.NoError(t, err)
	assert.True(t, call.Local)
	assert.True(t, call.Skill)

	_, err = r.Resolve(context.Background(), graphService(sparql.IRI("urn:cx:Skill:consumer:Unknown")), sparql.Binding{})
	assert.ErrorIs(t, err, ErrUnknownAsset)

	call, err = r.Resolve(context.Background(), graphService(sparql.IRI("https://peer/api/agent#urn:cx:Skill:remote:Run?mode=fast")), sparql.Binding{})
	require.NoError(t, err)
	assert.False(t, call.Local)
	assert.True(t, call.Skill)
	assert.Equal(t, "https://peer/api/agent?asset=urn%3Acx%3ASkill%3Aremote%3ARun&mode=fast", call.URL)
}

func TestRewriter_UnboundTarget(t *testing.T) {
	r := NewRewriter(nil, nil, RewriterConfig{}, nil)
	_, err := r.Resolve(context.Background(), graphService(sparql.Var("service")), sparql.Binding{})
	assert.ErrorIs(t, err, ErrUnboundTarget)
}

func TestRewriter_NegotiationErrorSurfaces(t *testing.T) {
	boom := errors.New("peer refused")
	r := NewRewriter(&fakeEndpoints{negotiateErr: boom}, nil, RewriterConfig{}, nil)
	_, err := r.Resolve(context.Background(), graphService(sparql.IRI("edc://peer#urn:example:Graph1")), sparql.Binding{})
	assert.ErrorIs(t, err, boom)
}

func TestOptimize(t *testing.T) {
	bgp := &sparql.BGP{Triples: []sparql.Triple{{S: sparql.Var("s"), P: sparql.IRI("urn:p"), O: sparql.Var("o")}}}
	svc := &sparql.Service{Target: sparql.IRI("http://peer/sparql"), Sub: bgp}
	graph := &sparql.Graph{Name: sparql.IRI("urn:g"), Sub: bgp}

	join := &sparql.Join{Left: bgp, Right: svc}
	out := Optimize(join)
	seq, ok := out.(*sparql.Sequence)
	require.True(t, ok)
	assert.Equal(t, []sparql.Node{bgp, svc}, seq.Nodes)
	assert.Same(t, svc, join.Right, "input is untouched")

	union := &sparql.Union{Left: bgp, Right: svc}
	_, ok = Optimize(&sparql.Join{Left: bgp, Right: union}).(*sparql.Sequence)
	assert.True(t, ok, "union containing a service")

	_, ok = Optimize(&sparql.Join{Left: graph, Right: bgp}).(*sparql.Sequence)
	assert.True(t, ok, "graph on the left")

	_, ok = Optimize(&sparql.Join{Left: bgp, Right: bgp}).(*sparql.Join)
	assert.True(t, ok, "plain joins stay joins")

	nested := Optimize(&sparql.Join{Left: &sparql.Join{Left: bgp, Right: svc}, Right: svc})
	seq, ok = nested.(*sparql.Sequence)
	require.True(t, ok)
	assert.Len(t, seq.Nodes, 3, "nested sequences are flattened")
}
