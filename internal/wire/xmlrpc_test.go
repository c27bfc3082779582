package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXMLRPCRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
	}{
		{"string", "hello"},
		{"int", 42},
		{"bool true", true},
		{"bool false", false},
		{"float", 3.5},
		{"array", []interface{}{"a", 1, true}},
		{"struct", map[string]interface{}{"name": "res.partner", "active": true}},
		{"nil", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := marshalXMLRPCValue(tc.in)
			decoded := unmarshalXMLRPCValue(encoded)
			assert.Equal(t, tc.in, decoded)
		})
	}
}

func TestEncodeDecodeXMLRPCCall(t *testing.T) {
	body, err := encodeXMLRPCCall("authenticate", "mydb", "admin", "secret", map[string]interface{}{})
	require.NoError(t, err)
	assert.Contains(t, string(body), "<methodName>authenticate</methodName>")
	assert.Contains(t, string(body), "mydb")
}

func TestDecodeXMLRPCResponseFault(t *testing.T) {
	fault := []byte(`<?xml version="1.0"?>
<methodResponse>
  <fault>
    <value>
      <struct>
        <member><name>faultCode</name><value><int>1</int></value></member>
        <member><name>faultString</name><value><string>Access Denied</string></value></member>
      </struct>
    </value>
  </fault>
</methodResponse>`)
	_, err := decodeXMLRPCResponse(fault)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access Denied")
}

func TestDecodeXMLRPCResponseValue(t *testing.T) {
	ok := []byte(`<?xml version="1.0"?>
<methodResponse>
  <params>
    <param><value><int>7</int></value></param>
  </params>
</methodResponse>`)
	v, err := decodeXMLRPCResponse(ok)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
