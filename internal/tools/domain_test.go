package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDomainAcceptsSimpleTuple(t *testing.T) {
	domain := []interface{}{[]interface{}{"name", "=", "Acme"}}
	assert.NoError(t, ValidateDomain(domain))
}

func TestValidateDomainAcceptsLogicalOperators(t *testing.T) {
	domain := []interface{}{
		"&",
		[]interface{}{"name", "ilike", "acme"},
		"|",
		[]interface{}{"active", "=", true},
		"!",
		[]interface{}{"state", "=", "cancel"},
	}
	assert.NoError(t, ValidateDomain(domain))
}

func TestValidateDomainEmptyIsValid(t *testing.T) {
	assert.NoError(t, ValidateDomain(nil))
	assert.NoError(t, ValidateDomain([]interface{}{}))
}

func TestValidateDomainRejectsUnknownOperator(t *testing.T) {
	domain := []interface{}{[]interface{}{"name", "~~", "Acme"}}
	assert.Error(t, ValidateDomain(domain))
}

func TestValidateDomainRejectsInWithoutList(t *testing.T) {
	domain := []interface{}{[]interface{}{"id", "in", 4}}
	assert.Error(t, ValidateDomain(domain))
}

func TestValidateDomainRejectsMissingOperand(t *testing.T) {
	domain := []interface{}{"&", []interface{}{"name", "=", "Acme"}}
	assert.Error(t, ValidateDomain(domain))
}

func TestValidateDomainRejectsTrailingElement(t *testing.T) {
	domain := []interface{}{
		[]interface{}{"name", "=", "Acme"},
		[]interface{}{"active", "=", true},
	}
	assert.Error(t, ValidateDomain(domain))
}

func TestValidateDomainRejectsMalformedTuple(t *testing.T) {
	domain := []interface{}{[]interface{}{"name", "="}}
	assert.Error(t, ValidateDomain(domain))
}
