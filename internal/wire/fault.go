package wire

import (
	"strings"

	"github.com/odoo-mcp/bridge/internal/models"
)

// tracebackTail extracts the exception class and message from the last
// non-empty line of a Python traceback, which Odoo formats as
// "{ClassName}: {message}" (spec §4.1). Returns empty strings when the text
// does not carry that shape.
func tracebackTail(traceback string) (class, message string) {
	lines := strings.Split(strings.TrimRight(traceback, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		idx := strings.Index(line, ": ")
		if idx <= 0 {
			return "", ""
		}
		class = line[:idx]
		// A class name is a dotted Python identifier; anything with spaces
		// is prose, not an exception line.
		if strings.ContainsAny(class, " \t") {
			return "", ""
		}
		return class, line[idx+2:]
	}
	return "", ""
}

// newFault assembles a models.RpcFault from whatever pieces a protocol's
// error envelope carried. When the error class is missing but a traceback is
// present, both class and message are recovered from the traceback's last
// exception line.
func newFault(message, errorClass, traceback, model, method string) models.RpcFault {
	if errorClass == "" && traceback != "" {
		if class, msg := tracebackTail(traceback); class != "" {
			errorClass = class
			if message == "" {
				message = msg
			}
		}
	}
	if message == "" {
		message = "backend call failed"
	}
	return models.RpcFault{
		Message:    message,
		ErrorClass: errorClass,
		Traceback:  traceback,
		Model:      model,
		Method:     method,
	}
}
