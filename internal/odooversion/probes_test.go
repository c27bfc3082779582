package odooversion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/constants"
)

func TestHTTPProbeTopLevelField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"server_version":"19.0"}`))
	}))
	defer srv.Close()

	p := newHTTPProbe(constants.ProtocolModernREST, "/api/version", time.Second)
	assert.Equal(t, constants.ProtocolModernREST, p.Protocol())

	v, err := p.ProbeVersion(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "19.0", v)
}

func TestHTTPProbeNestedResultField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"server_version":"17.0"}}`))
	}))
	defer srv.Close()

	p := newHTTPProbe(constants.ProtocolLegacyJSON, "/web/webclient/version_info", time.Second)
	v, err := p.ProbeVersion(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "17.0", v)
}

func TestHTTPProbeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := newHTTPProbe(constants.ProtocolLegacyXML, "/xmlrpc/2/common/version", time.Second)
	_, err := p.ProbeVersion(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestHTTPProbeMissingServerVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := newHTTPProbe(constants.ProtocolModernREST, "/api/version", time.Second)
	_, err := p.ProbeVersion(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestDefaultProbesOrderAndProtocols(t *testing.T) {
	probes := DefaultProbes(time.Second)("http://example.invalid")
	require.Len(t, probes, 3)
	assert.Equal(t, constants.ProtocolModernREST, probes[0].Protocol())
	assert.Equal(t, constants.ProtocolLegacyJSON, probes[1].Protocol())
	assert.Equal(t, constants.ProtocolLegacyXML, probes[2].Protocol())
}
