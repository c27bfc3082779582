package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/models"
)

func TestTracebackTail(t *testing.T) {
	tb := "Traceback (most recent call last):\n" +
		"  File \"/odoo/models.py\", line 100, in create\n" +
		"    raise ValidationError(msg)\n" +
		"odoo.exceptions.ValidationError: missing required field: partner_id\n"

	class, msg := tracebackTail(tb)
	assert.Equal(t, "odoo.exceptions.ValidationError", class)
	assert.Equal(t, "missing required field: partner_id", msg)
}

func TestTracebackTailRejectsProse(t *testing.T) {
	class, msg := tracebackTail("something went wrong: badly")
	assert.Empty(t, class)
	assert.Empty(t, msg)
}

func TestNewFaultRecoversClassFromTraceback(t *testing.T) {
	tb := "Traceback (most recent call last):\nodoo.exceptions.AccessError: You are not allowed to access this document."
	f := newFault("", "", tb, "res.partner", "read")
	assert.Equal(t, "odoo.exceptions.AccessError", f.ErrorClass)
	assert.Equal(t, "You are not allowed to access this document.", f.Message)
	assert.Equal(t, tb, f.Traceback)
}

func TestJSONRPCFaultDecodesDataEnvelope(t *testing.T) {
	f := jsonrpcFault{
		Code:    200,
		Message: "Odoo Server Error",
		Data:    []byte(`{"name":"odoo.exceptions.ValidationError","message":"bad value","debug":"Traceback..."}`),
	}
	fault := f.asFault()
	require.IsType(t, models.RpcFault{}, fault)
	assert.Equal(t, "odoo.exceptions.ValidationError", fault.ErrorClass)
	assert.Equal(t, "bad value", fault.Message)
	assert.Equal(t, "Traceback...", fault.Traceback)
}

func TestJSONRPCFaultFallsBackToTopLevelMessage(t *testing.T) {
	f := jsonrpcFault{Code: 100, Message: "Odoo Session Expired"}
	fault := f.asFault()
	assert.Equal(t, "Odoo Session Expired", fault.Message)
	assert.Empty(t, fault.ErrorClass)
}
