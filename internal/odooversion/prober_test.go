package odooversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/constants"
)

func TestParseVersionString(t *testing.T) {
	cases := []struct {
		raw      string
		wantMaj  int
		wantMin  int
		wantEd   string
		wantProt string
	}{
		{"19.0", 19, 0, "community", constants.ProtocolModernREST},
		{"17.0", 17, 0, "community", constants.ProtocolLegacyJSON},
		{"16.0+e", 16, 0, "enterprise", constants.ProtocolLegacyXML},
		{"17.0e", 17, 0, "enterprise", constants.ProtocolLegacyJSON},
		{"16.0-20240801", 16, 0, "community", constants.ProtocolLegacyXML},
		{"saas~17.2", 17, 2, "community", constants.ProtocolLegacyJSON},
		{"saas-18.1", 18, 1, "community", constants.ProtocolLegacyJSON},
		{"13.0", 13, 0, "community", constants.ProtocolLegacyXML},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			v, err := ParseVersionString(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.wantMaj, v.Major)
			assert.Equal(t, tc.wantMin, v.Minor)
			assert.Equal(t, tc.wantEd, v.Edition)
			assert.Equal(t, tc.wantProt, v.Protocol)
		})
	}
}

func TestParseVersionStringInvalid(t *testing.T) {
	_, err := ParseVersionString("not-a-version")
	require.Error(t, err)
}

func TestParseVersionTuple(t *testing.T) {
	v, err := ParseVersionTuple([]interface{}{float64(17), float64(0), float64(0), "final", float64(0)})
	require.NoError(t, err)
	assert.Equal(t, 17, v.Major)
	assert.Equal(t, 0, v.Minor)
	assert.Equal(t, "final", v.Level)
	assert.Equal(t, constants.ProtocolLegacyJSON, v.Protocol)

	_, err = ParseVersionTuple([]interface{}{"seventeen"})
	require.Error(t, err)
}

func TestFallbackVersion(t *testing.T) {
	v := FallbackVersion()
	assert.Equal(t, 14, v.Major)
	assert.Equal(t, constants.ProtocolLegacyXML, v.Protocol)
}
