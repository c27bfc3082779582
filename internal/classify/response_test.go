package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/models"
)

func TestToErrorResponseExtractsMissingRequiredField(t *testing.T) {
	fault := models.RpcFault{
		Message: "missing required field: partner_id",
		Model:   "sale.order",
		Method:  "create",
	}
	resp := ToErrorResponse(fault)

	assert.True(t, resp.Error)
	assert.Equal(t, CategoryValidation, resp.Category)
	assert.Equal(t, "MISSING_REQUIRED_FIELD", resp.Code)
	assert.True(t, resp.Retry)
	assert.Contains(t, resp.Suggestion, "fields_get")
	require.NotNil(t, resp.Details)
	assert.Equal(t, "partner_id", resp.Details.(map[string]interface{})["field"])
}

func TestToErrorResponseNilError(t *testing.T) {
	resp := ToErrorResponse(nil)
	assert.False(t, resp.Error)
}

func TestToErrorResponseConnectionCarriesRetryAfter(t *testing.T) {
	resp := ToErrorResponse(assertErr("dial tcp: connection refused"))
	assert.Equal(t, CategoryConnection, resp.Category)
	assert.Equal(t, 2, resp.RetryAfter)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
