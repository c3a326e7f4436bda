package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/catenax-ng/product-agents-edc-sub000/agreement"
)

type recordingSink struct {
	got   []agreement.CallbackPayload
	match bool
}

func (s *recordingSink) OnEndpointReady(p agreement.CallbackPayload) bool {
	s.got = append(s.got, p.Normalize())
	return s.match
}

func TestCallbackHandler_AcceptsEDCAliases(t *testing.T) {
	sink := &recordingSink{match: true}
	h := NewCallbackHandler(sink, zaptest.NewLogger(t))

	body := `{"id":"transfer-1","endpoint":"https://peer/data","authKey":"Authorization","authCode":"tok","contractId":"c-1"}`
	w := httptest.NewRecorder()
	h.HandleEndpointDataReference(w, postJSON("/callback/endpoint-data-reference", body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"matched":true}`, w.Body.String())
	require.Len(t, sink.got, 1)
	assert.Equal(t, "transfer-1", sink.got[0].CorrelationID)
	assert.Equal(t, "https://peer/data", sink.got[0].EndpointURL)
	assert.Equal(t, "Authorization", sink.got[0].AuthHeaderName)
	assert.Equal(t, "tok", sink.got[0].AuthHeaderValue)
}

func TestCallbackHandler_UnmatchedIsStillOK(t *testing.T) {
	ctrl := agreement.NewController(nil, agreement.DefaultConfig(), zaptest.NewLogger(t))
	h := NewCallbackHandler(ctrl, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleEndpointDataReference(w, postJSON("/callback/endpoint-data-reference",
		`{"correlationId":"someone-else","endpointUrl":"https://x","authHeaderName":"Authorization","authHeaderValue":"t"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"matched":false}`, w.Body.String())
}

func TestCallbackHandler_Rejects(t *testing.T) {
	h := NewCallbackHandler(&recordingSink{}, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleEndpointDataReference(w, httptest.NewRequest(http.MethodGet, "/callback/endpoint-data-reference", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	h.HandleEndpointDataReference(w, httptest.NewRequest(http.MethodPost, "/callback/endpoint-data-reference", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
