package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odoo-mcp/bridge/internal/models"
)

func TestNormalizeRecordRelationalTuple(t *testing.T) {
	fields := map[string]models.FieldInfo{"partner_id": {Name: "partner_id", Type: "many2one"}}
	record := map[string]interface{}{"partner_id": []interface{}{float64(4), "Azure Interior"}}

	out := NormalizeRecord(record, fields, NormalizeOptions{})
	assert.Equal(t, map[string]interface{}{"id": float64(4), "name": "Azure Interior"}, out["partner_id"])
}

func TestNormalizeRecordEmptyRelationalIsNull(t *testing.T) {
	fields := map[string]models.FieldInfo{"partner_id": {Name: "partner_id", Type: "many2one"}}
	record := map[string]interface{}{"partner_id": false}

	out := NormalizeRecord(record, fields, NormalizeOptions{})
	assert.Nil(t, out["partner_id"])
}

func TestNormalizeRecordEmptyStringField(t *testing.T) {
	fields := map[string]models.FieldInfo{"note": {Name: "note", Type: "text"}}
	record := map[string]interface{}{"note": false}

	out := NormalizeRecord(record, fields, NormalizeOptions{})
	assert.Equal(t, "", out["note"])
}

func TestNormalizeRecordDatetime(t *testing.T) {
	fields := map[string]models.FieldInfo{"write_date": {Name: "write_date", Type: "datetime"}}
	record := map[string]interface{}{"write_date": "2024-03-05 12:30:00"}

	out := NormalizeRecord(record, fields, NormalizeOptions{})
	assert.Equal(t, "2024-03-05T12:30:00Z", out["write_date"])
}

func TestNormalizeRecordDropsBinaryUnlessRequested(t *testing.T) {
	fields := map[string]models.FieldInfo{"image_1920": {Name: "image_1920", Type: "binary"}}
	record := map[string]interface{}{"image_1920": "c29tZWJhc2U2NA=="}

	out := NormalizeRecord(record, fields, NormalizeOptions{})
	assert.Nil(t, out["image_1920"])

	out = NormalizeRecord(record, fields, NormalizeOptions{RequestedBinary: map[string]bool{"image_1920": true}})
	assert.Equal(t, "c29tZWJhc2U2NA==", out["image_1920"])
}

func TestNormalizeRecordStripsHTML(t *testing.T) {
	fields := map[string]models.FieldInfo{"description": {Name: "description", Type: "html"}}
	record := map[string]interface{}{"description": "<p>Hello &amp; welcome</p><p>Second</p>"}

	out := NormalizeRecord(record, fields, NormalizeOptions{StripHTML: true})
	assert.Equal(t, "Hello & welcome\nSecond", out["description"])
}

func TestNormalizeRecordIsIdempotent(t *testing.T) {
	fields := map[string]models.FieldInfo{
		"partner_id": {Name: "partner_id", Type: "many2one"},
		"write_date": {Name: "write_date", Type: "datetime"},
		"note":       {Name: "note", Type: "text"},
	}
	record := map[string]interface{}{
		"partner_id": []interface{}{float64(4), "Azure Interior"},
		"write_date": "2024-03-05 12:30:00",
		"note":       false,
	}

	once := NormalizeRecord(record, fields, NormalizeOptions{})
	twice := NormalizeRecord(once, fields, NormalizeOptions{})
	assert.Equal(t, once, twice)
}
