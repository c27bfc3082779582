package wire

import (
	"fmt"
	"time"

	"github.com/odoo-mcp/bridge/internal/constants"
)

// New builds the Adapter for the given protocol identifier.
func New(protocol, baseURL string, maxInFlight int64, timeout time.Duration) (Adapter, error) {
	switch protocol {
	case constants.ProtocolLegacyXML:
		return NewLegacyXMLAdapter(baseURL, maxInFlight, timeout), nil
	case constants.ProtocolLegacyJSON:
		return NewLegacyJSONAdapter(baseURL, timeout), nil
	case constants.ProtocolModernREST:
		return NewModernRESTAdapter(baseURL, timeout), nil
	default:
		return nil, fmt.Errorf("unknown wire protocol %q", protocol)
	}
}
