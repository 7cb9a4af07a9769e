package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
)

// rig serves a single device handler over an in-process router.
type rig struct {
	t      *testing.T
	server *ascomserver.Server
	router http.Handler
	base   string
}

func newRig(t *testing.T, h handlers.DeviceHandler) *rig {
	t.Helper()
	cfg := ascomserver.DefaultConfig()
	cfg.Server.DisableDiscovery = true
	cfg.Logging.Level = "error"

	s, err := ascomserver.NewServer(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.AddDevice(h.AlpacaDevice()))

	desc := h.AlpacaDevice().Descriptor()
	return &rig{
		t:      t,
		server: s,
		router: s.Router(),
		base:   "/api/v1/" + desc.DeviceType + "/" + strconv.Itoa(desc.DeviceNumber) + "/",
	}
}

// call sends one request as clientID, with params as the query string for
// GET and as a form body for PUT.
func (r *rig) call(method, action, clientID string, kv ...string) ascomserver.APIResponse {
	r.t.Helper()
	params := url.Values{"ClientTransactionID": {"1"}}
	if clientID != "" {
		params.Set("ClientID", clientID)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		params.Set(kv[i], kv[i+1])
	}

	var req *http.Request
	if method == http.MethodPut {
		req = httptest.NewRequest(method, r.base+action, strings.NewReader(params.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, r.base+action+"?"+params.Encode(), nil)
	}
	rec := httptest.NewRecorder()
	r.router.ServeHTTP(rec, req)

	require.Equal(r.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ascomserver.APIResponse
	require.NoError(r.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func (r *rig) get(action, clientID string, kv ...string) ascomserver.APIResponse {
	r.t.Helper()
	return r.call(http.MethodGet, action, clientID, kv...)
}

func (r *rig) put(action, clientID string, kv ...string) ascomserver.APIResponse {
	r.t.Helper()
	return r.call(http.MethodPut, action, clientID, kv...)
}

// connect binds clientID to a slot and sets Connected=true.
func (r *rig) connect(clientID string) {
	r.t.Helper()
	resp := r.put("connected", clientID, "Connected", "true")
	require.Zero(r.t, resp.ErrorNumber, resp.ErrorMessage)
}
