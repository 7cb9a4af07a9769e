package ascomserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.DisableDiscovery = true
	cfg.Logging.Level = "error"
	return cfg
}

func newTestDevice(t *testing.T, deviceType string, number int, routes ...Route) *Device {
	t.Helper()
	desc, err := NewDescriptor(deviceType, number, 1, DescriptorConfig{FirmwareVersion: "2.1"})
	require.NoError(t, err)
	d := NewDevice(desc, nil)
	require.NoError(t, d.RegisterAll(routes))
	return d
}

func newTestServer(t *testing.T, devices ...*Device) (*Server, *gin.Engine) {
	t.Helper()
	s, err := NewServer(testConfig(), nil)
	require.NoError(t, err)
	for _, d := range devices {
		require.NoError(t, s.AddDevice(d))
	}
	return s, s.Router()
}

// do sends params as the query string for GET and as a form body for PUT.
func do(router http.Handler, method, path string, params url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if method == http.MethodPut {
		req = httptest.NewRequest(method, path, strings.NewReader(params.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		target := path
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func client(id, txn string) url.Values {
	return url.Values{"ClientID": {id}, "ClientTransactionID": {txn}}
}

func with(v url.Values, kv ...string) url.Values {
	out := url.Values{}
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out.Set(kv[i], kv[i+1])
	}
	return out
}

func send(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
