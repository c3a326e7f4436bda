package federation

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/catenax-ng/product-agents-edc-sub000/internal/tlsutil"
	"github.com/catenax-ng/product-agents-edc-sub000/sparql"
)

// Media types of the delegation protocol.
const (
	ContentTypeSPARQLQuery = "application/sparql-query"
	WarningsPart           = "cx_warnings"

	acceptHeader = sparql.ContentTypeResultsJSON + ", multipart/form-data;q=0.9, multipart/mixed;q=0.9"
)

// Request is one outbound delegation: a SPARQL query for graph and endpoint
// calls, or an encoded parameter table for skill calls.
type Request struct {
	Call   *Call
	Query  string
	Params string
}

// Transport carries requests to remote targets.
type Transport interface {
	Do(ctx context.Context, req *Request) ([]sparql.Binding, error)
}

// TransportConfig 出站调用配置
type TransportConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// CallTimeout bounds a whole call including reading the body.
	CallTimeout time.Duration
	// MaxConnsPerPeer limits concurrent calls per peer host; 0 means unlimited.
	MaxConnsPerPeer int64
	// RootCAs replaces the system roots for secured calls when set.
	RootCAs *x509.CertPool
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout:  10 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    30 * time.Second,
		CallTimeout:     120 * time.Second,
		MaxConnsPerPeer: 8,
	}
}

// HTTPTransport delegates over HTTP. https endpoints use the hardened TLS
// client.
type HTTPTransport struct {
	config TransportConfig
	plain  *http.Client
	secure *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	limits map[string]*semaphore.Weighted

	// OTLP 侧的出站指标，遥测关闭时为 noop
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}


// NewHTTPTransport creates the HTTP transport.
func NewHTTPTransport(config TransportConfig, logger *zap.Logger) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	dial := deadlineDialer(config.ConnectTimeout, config.ReadTimeout, config.WriteTimeout)

	plain := &http.Transport{
		DialContext:           dial,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	opts := []tlsutil.TransportOption{tlsutil.WithDialContext(dial)}
	if config.RootCAs != nil {
		opts = append(opts, tlsutil.WithRootCAs(config.RootCAs))
	}
	secure := tlsutil.SecureTransport(opts...)

	t := &HTTPTransport{
		config: config,
		plain:  &http.Client{Timeout: config.CallTimeout, Transport: plain},
		secure: &http.Client{Timeout: config.CallTimeout, Transport: secure},
		logger: logger.With(zap.String("component", "transport")),
		limits: make(map[string]*semaphore.Weighted),
	}
	if err := t.initInstruments(otel.Meter(instrumentationName)); err != nil {
		t.logger.Warn("otel instruments unavailable, falling back to noop", zap.Error(err))
		_ = t.initInstruments(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return t
}

func (t *HTTPTransport) initInstruments(meter metric.Meter) error {
	var err error
	if t.calls, err = meter.Int64Counter("federation.remote_call.total",
		metric.WithDescription("Delegated remote calls by scheme and outcome"),
		metric.WithUnit("{call}")); err != nil {
		return err
	}
	if t.duration, err = meter.Float64Histogram("federation.remote_call.duration",
		metric.WithDescription("Delegated remote call duration"),
		metric.WithUnit("s")); err != nil {
		return err
	}
	t.inflight, err = meter.Int64UpDownCounter("federation.remote_call.inflight",
		metric.WithDescription("Remote calls currently in flight"),
		metric.WithUnit("{call}"))
	return err
}

// record 上报一次调用，outcome 为 success / error / status
func (t *HTTPTransport) record(ctx context.Context, call *Call, outcome string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("scheme", call.Scheme),
		attribute.String("peer", call.Host()),
		attribute.String("outcome", outcome),
	)
	t.calls.Add(ctx, 1, attrs)
	t.duration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// Do performs the call and decodes the result rows.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) ([]sparql.Binding, error) {
	call := req.Call
	if sem := t.limit(call.Host()); sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
	}

	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	client := t.plain
	if httpReq.URL.Scheme == "https" {
		client = t.secure
	}

	start := time.Now()
	peer := metric.WithAttributes(attribute.String("peer", call.Host()))
	t.inflight.Add(ctx, 1, peer)
	defer t.inflight.Add(ctx, -1, peer)

	resp, err := client.Do(httpReq)
	if err != nil {
		t.record(ctx, call, "error", start)
		return nil, fmt.Errorf("call %s: %w", call.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.record(ctx, call, "status", start)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s answered %d: %s", ErrRemoteStatus, call.URL, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	rows, err := t.decode(ctx, call, resp)
	if err != nil {
		t.record(ctx, call, "error", start)
		return nil, err
	}
	t.record(ctx, call, "success", start)
	return rows, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	call := req.Call
	var (
		httpReq *http.Request
		err     error
	)
	if call.Skill {
		target := call.URL
		if req.Params != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + req.Params
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, call.URL, strings.NewReader(req.Query))
		if err == nil {
			httpReq.Header.Set("Content-Type", ContentTypeSPARQLQuery)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	httpReq.Header.Set("Accept", acceptHeader)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	if call.AuthKey != "" {
		httpReq.Header.Set(call.AuthKey, call.AuthCode)
	}
	return httpReq, nil
}

func (t *HTTPTransport) decode(ctx context.Context, call *Call, resp *http.Response) ([]sparql.Binding, error) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = sparql.ContentTypeResultsJSON
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: content type %q: %v", ErrMalformedResponse, contentType, err)
	}

	switch {
	case mediaType == sparql.ContentTypeResultsJSON || mediaType == "application/json":
		return decodeRows(resp.Body)
	case strings.HasPrefix(mediaType, "multipart/"):
		return t.decodeMultipart(ctx, call, multipart.NewReader(resp.Body, params["boundary"]))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedResponse, mediaType)
	}
}

// decodeMultipart reads a results part plus an optional warnings part.
func (t *HTTPTransport) decodeMultipart(ctx context.Context, call *Call, mr *multipart.Reader) ([]sparql.Binding, error) {
	var (
		rows  []sparql.Binding
		found bool
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: multipart: %v", ErrMalformedResponse, err)
		}

		if partName(part) == WarningsPart {
			var warnings []Warning
			if err := json.NewDecoder(part).Decode(&warnings); err != nil {
				t.logger.Warn("ignoring undecodable warnings part",
					zap.String("target", call.Target),
					zap.Error(err))
				continue
			}
			for _, w := range warnings {
				t.logger.Warn("remote warning",
					zap.String("target", call.Target),
					zap.String("problem", w.Problem),
					zap.String("context", w.Context))
			}
			WarningsFrom(ctx).Add(warnings...)
			continue
		}

		if found {
			continue
		}
		if rows, err = decodeRows(part); err != nil {
			return nil, err
		}
		found = true
	}
	if !found {
		return nil, fmt.Errorf("%w: multipart response without results", ErrMalformedResponse)
	}
	return rows, nil
}

func decodeRows(r io.Reader) ([]sparql.Binding, error) {
	_, rows, err := sparql.DecodeResults(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return rows, nil
}

func partName(p *multipart.Part) string {
	if name := p.FormName(); name != "" {
		return name
	}
	if _, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition")); err == nil {
		return params["name"]
	}
	return ""
}

// limit returns the per-host semaphore, or nil when unlimited.
func (t *HTTPTransport) limit(host string) *semaphore.Weighted {
	if t.config.MaxConnsPerPeer <= 0 || host == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sem, ok := t.limits[host]
	if !ok {
		sem = semaphore.NewWeighted(t.config.MaxConnsPerPeer)
		t.limits[host] = sem
	}
	return sem
}

// =============================================================================
// 🔌 Connection deadlines
// =============================================================================

// deadlineDialer dials with a connect timeout and arms a read or write
// deadline before every IO on the connection.
func deadlineDialer(connect, read, write time.Duration) tlsutil.DialFunc {
	d := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if read <= 0 && write <= 0 {
			return conn, nil
		}
		return &deadlineConn{Conn: conn, read: read, write: write}, nil
	}
}

type deadlineConn struct {
	net.Conn
	read, write time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
