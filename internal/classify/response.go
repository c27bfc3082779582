package classify

import (
	"errors"
	"regexp"

	"github.com/odoo-mcp/bridge/internal/models"
)

// extractor refines a classified error with a machine-readable code and
// structured details by pulling named groups out of the fault text (spec
// §4.4 step 3: "named groups fill templates"). Only categories with a
// well-known, stable backend wording get an extractor; everything else
// keeps the bare category/retry/suggestion triple from Classify.
type extractor struct {
	category   string
	regex      *regexp.Regexp
	code       string
	detailKey  string
	suggestion string
}

var extractors = []extractor{
	{
		category:   CategoryValidation,
		regex:      regexp.MustCompile(`(?i)missing required field[s]?\(?s?\)?[:\s]+['"]?(?P<field>[a-z0-9_.]+)['"]?`),
		code:       "MISSING_REQUIRED_FIELD",
		detailKey:  "field",
		suggestion: "call fields_get on the model to see which fields are required, then retry with the missing value set",
	},
	{
		category:   CategoryValidation,
		regex:      regexp.MustCompile(`(?i)invalid field[:\s]+['"]?(?P<field>[a-z0-9_.]+)['"]?`),
		code:       "INVALID_FIELD",
		detailKey:  "field",
		suggestion: "call fields_get to confirm the field name and type before retrying",
	},
	{
		category:   CategoryNotFound,
		regex:      regexp.MustCompile(`(?i)record[s]?\s*\(?(?P<ids>[0-9]+(?:\s*,\s*[0-9]+)*)\)?\s*(?:does not exist|not found)`),
		code:       "RECORD_NOT_FOUND",
		detailKey:  "ids",
		suggestion: "confirm the record id with search_read before retrying",
	},
}

// ToErrorResponse builds the structured payload carried in a tool call's
// success envelope (spec §4.4/§7) from any error returned by the connection
// manager or a toolset handler.
func ToErrorResponse(err error) models.ErrorResponse {
	if err == nil {
		return models.ErrorResponse{}
	}
	category, retryable, suggestion := Classify(err)
	resp := models.ErrorResponse{
		Error:         true,
		Category:      category,
		Message:       err.Error(),
		Suggestion:    suggestion,
		Retry:         retryable,
		OriginalError: err.Error(),
	}
	// A structured fault's traceback stays out of the client-facing message;
	// the full trace lives only in original_error (spec §4.4).
	var fault models.RpcFault
	if errors.As(err, &fault) && fault.Traceback != "" {
		resp.Message = fault.Message
		resp.OriginalError = fault.Traceback
	}
	if category == CategoryConnection || category == CategoryRateLimit {
		resp.RetryAfter = 2
	}

	msg := err.Error()
	for _, e := range extractors {
		if e.category != category {
			continue
		}
		m := e.regex.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		resp.Code = e.code
		resp.Suggestion = e.suggestion
		idx := e.regex.SubexpIndex(e.detailKey)
		if idx >= 0 && idx < len(m) {
			resp.Details = map[string]interface{}{e.detailKey: m[idx]}
		}
		break
	}
	return resp
}
