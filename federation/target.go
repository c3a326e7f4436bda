package federation

import (
	"fmt"
	"net/url"
	"strings"
)

// Target schemes understood by the rewriter.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeEDC   = "edc"
	SchemeEDCS  = "edcs"
)

// Target is a parsed remote target descriptor:
//
//	scheme://[peer-address][#asset][?params]
//
// http/https targets are called directly. edc/edcs targets name a peer
// connector and an asset that must be negotiated first; edcs talks to the
// peer over TLS.
type Target struct {
	Raw    string
	Scheme string
	Peer   string // host[:port][/path], may be empty
	Asset  string // may be empty
	Params url.Values
}

// ParseTarget parses raw. Both "#asset?params" and "?params#asset" orders are
// accepted.
func ParseTarget(raw string) (*Target, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrInvalidTarget, raw)
	}
	scheme = strings.ToLower(scheme)
	switch scheme {
	case SchemeHTTP, SchemeHTTPS, SchemeEDC, SchemeEDCS:
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, scheme)
	}

	t := &Target{Raw: raw, Scheme: scheme, Params: url.Values{}}

	end := strings.IndexAny(rest, "#?")
	if end < 0 {
		t.Peer = rest
		return t, nil
	}
	t.Peer = rest[:end]
	rest = rest[end:]

	for rest != "" {
		marker := rest[0]
		rest = rest[1:]
		// each section runs until the other marker
		other := byte('#')
		if marker == '#' {
			other = '?'
		}
		next := strings.IndexByte(rest, other)
		part := rest
		if next >= 0 {
			part, rest = rest[:next], rest[next:]
		} else {
			rest = ""
		}
		switch marker {
		case '#':
			asset, err := url.PathUnescape(part)
			if err != nil {
				return nil, fmt.Errorf("%w: asset %q: %v", ErrInvalidTarget, part, err)
			}
			t.Asset = asset
		case '?':
			q, err := url.ParseQuery(part)
			if err != nil {
				return nil, fmt.Errorf("%w: params %q: %v", ErrInvalidTarget, part, err)
			}
			for k, vs := range q {
				t.Params[k] = append(t.Params[k], vs...)
			}
		}
	}
	return t, nil
}

// Negotiated reports whether the target needs a contract before data flows.
func (t *Target) Negotiated() bool {
	return t.Scheme == SchemeEDC || t.Scheme == SchemeEDCS
}

// Secure reports whether the transport must use TLS.
func (t *Target) Secure() bool {
	return t.Scheme == SchemeHTTPS || t.Scheme == SchemeEDCS
}

// PeerURL is the protocol address of the peer connector. defaultPeer is used
// when the descriptor leaves the peer empty; it is returned unchanged so an
// operator can configure a full URL.
func (t *Target) PeerURL(defaultPeer string) string {
	if t.Peer == "" {
		return defaultPeer
	}
	if t.Secure() {
		return "https://" + t.Peer
	}
	return "http://" + t.Peer
}

// withParams appends params to base, keeping any query base already has.
func withParams(base string, params url.Values) (string, error) {
	if len(params) == 0 {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
