package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odoo-mcp/bridge/internal/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		category  string
		retryable bool
	}{
		{"access", errors.New("Access Denied"), CategoryAccess, false},
		{"not found", errors.New("record does not exist"), CategoryNotFound, true},
		{"constraint", errors.New("violates unique constraint"), CategoryConstraint, true},
		{"state", errors.New("invoice is already confirmed, invalid state"), CategoryState, true},
		{"validation", errors.New("missing required field partner_id"), CategoryValidation, true},
		{"wizard", errors.New("stock.backorder.confirmation wizard failed"), CategoryWizard, true},
		{"configuration", errors.New("no journal configured for this company"), CategoryConfiguration, false},
		{"rate limit", errors.New("429 too many requests"), CategoryRateLimit, true},
		{"connection", errors.New("dial tcp: connection refused"), CategoryConnection, true},
		{"unknown", errors.New("something weird happened"), CategoryUnknown, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			category, retryable, _ := Classify(tc.err)
			assert.Equal(t, tc.category, category)
			assert.Equal(t, tc.retryable, retryable)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	category, retryable, suggestion := Classify(nil)
	assert.Empty(t, category)
	assert.False(t, retryable)
	assert.Empty(t, suggestion)
}

func TestClassifyPrefersErrorClassOverPatternMatch(t *testing.T) {
	fault := models.RpcFault{Message: "some odd wording that would otherwise match nothing", ErrorClass: "odoo.exceptions.AccessDenied"}
	category, retryable, _ := Classify(fault)
	assert.Equal(t, CategoryAccess, category)
	assert.False(t, retryable)
}
