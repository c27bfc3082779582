package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/models"
)

func validConfig() *Config {
	c := Default()
	c.URL = "https://example.odoo.com"
	c.Database = "prod"
	c.Username = "admin"
	c.Password = "secret"
	return c
}

func TestValidateRequiresConnectionFields(t *testing.T) {
	c := Default()
	require.Error(t, c.Validate())
}

func TestValidateAcceptsAPIKeyAlone(t *testing.T) {
	c := Default()
	c.URL = "https://example.odoo.com"
	c.Database = "prod"
	c.APIKey = "key123"
	require.NoError(t, c.Validate())
}

func TestValidateRejectsModernRESTWithoutAPIKey(t *testing.T) {
	c := validConfig()
	c.ForceProtocol = "modern-rest"
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnknownSafetyMode(t *testing.T) {
	c := validConfig()
	c.SafetyMode = "superuser"
	require.Error(t, c.Validate())
}

func TestBuildSafetyPolicySplitsModelBlocklists(t *testing.T) {
	c := validConfig()
	c.ModelBlocklist = []string{"custom.model"}
	policy := c.BuildSafetyPolicy()

	assert.True(t, policy.ModelBlocklist["custom.model"], "operator-configured models are hard-blocked")
	assert.False(t, policy.ModelBlocklist["res.users"], "defaults must not be hard-blocked")
	assert.True(t, policy.ModelWriteBlocklist["res.users"], "defaults are write-blocked")
	assert.True(t, policy.ModelWriteBlocklist["ir.mail_server"])
	assert.True(t, policy.ModelWriteBlocklist["payment.provider"])
}

func TestBuildSafetyPolicyUnionsFieldAndMethodDefaults(t *testing.T) {
	c := validConfig()
	c.FieldBlocklist = []string{"vat"}
	policy := c.BuildSafetyPolicy()

	assert.True(t, policy.FieldBlocklist["vat"])
	assert.True(t, policy.FieldBlocklist["password"], "built-in default must survive alongside user-provided entries")
}

func TestIsReadOnlyReflectsSafetyMode(t *testing.T) {
	c := validConfig()
	c.SafetyMode = string(models.ModeReadOnly)
	assert.True(t, c.IsReadOnly())

	c.SafetyMode = string(models.ModeFull)
	assert.False(t, c.IsReadOnly())
}

func TestIsLocalhostAddr(t *testing.T) {
	assert.True(t, IsLocalhostAddr("127.0.0.1:8080"))
	assert.True(t, IsLocalhostAddr("localhost:8080"))
	assert.False(t, IsLocalhostAddr("0.0.0.0:8080"))
	assert.False(t, IsLocalhostAddr("10.0.0.5:8080"))
}
