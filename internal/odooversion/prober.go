// Package odooversion implements the Version Prober (spec §4.2): a small,
// ordered sequence of cheap requests against a candidate backend that
// determines its Odoo major/minor version and edition, and from that picks
// which of the three wire protocols the Connection Manager should use.
//
// The probe order mirrors the teacher's GetMetadata fallback chain in
// internal/client/client.go (try the expected endpoint first, fall back to a
// simpler one on parse failure) generalized to three candidate protocols
// instead of one.
package odooversion

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
)

// VersionProbe is implemented per wire protocol: it attempts to retrieve a
// version string from the backend using that protocol's transport, without
// assuming the protocol will ultimately be the one selected.
type VersionProbe interface {
	Protocol() string
	ProbeVersion(ctx context.Context, baseURL string) (string, error)
}

var serverVersionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?$`)

// ParseVersionString turns an Odoo `server_version` string into a
// models.OdooVersion. The accepted grammar (spec §4.2): "N.N",
// "N.N-datestamp" (nightly builds), "N.Ne" and "N.N+e" (trailing enterprise
// marker), and the SaaS prefixes "saas-N.N"/"saas~N.N", which are stripped
// before matching the numeric part.
func ParseVersionString(raw string) (models.OdooVersion, error) {
	s := raw
	for _, prefix := range []string{"saas~", "saas-"} {
		if len(s) > len(prefix) && s[:len(prefix)] == prefix {
			s = s[len(prefix):]
		}
	}

	// A nightly datestamp suffix ("17.0-20240801") carries no version
	// information beyond the numeric pair.
	if idx := strings.IndexByte(s, '-'); idx > 0 {
		s = s[:idx]
	}

	edition := "community"
	switch {
	case strings.HasSuffix(s, "+e"):
		edition = "enterprise"
		s = strings.TrimSuffix(s, "+e")
	case strings.HasSuffix(s, "e"):
		edition = "enterprise"
		s = strings.TrimSuffix(s, "e")
	}

	m := serverVersionPattern.FindStringSubmatch(s)
	if m == nil {
		return models.OdooVersion{}, fmt.Errorf("unrecognized Odoo version string %q", raw)
	}

	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	micro := 0
	if m[3] != "" {
		micro, _ = strconv.Atoi(m[3])
	}

	v := models.OdooVersion{
		Major:      major,
		Minor:      minor,
		Micro:      micro,
		Edition:    edition,
		FullString: raw,
	}
	v.Protocol = SelectProtocol(v)
	return v, nil
}

// ParseVersionTuple turns the server_version_info tuple form
// [major, minor, micro, level, serial] (spec §4.2) into a
// models.OdooVersion. The tuple carries no edition marker, so edition stays
// "unknown" until a session-info flag or module probe resolves it.
func ParseVersionTuple(tuple []interface{}) (models.OdooVersion, error) {
	if len(tuple) < 2 {
		return models.OdooVersion{}, fmt.Errorf("version tuple needs at least [major, minor], got %v", tuple)
	}
	num := func(v interface{}) (int, bool) {
		switch n := v.(type) {
		case float64:
			return int(n), true
		case int:
			return n, true
		default:
			return 0, false
		}
	}
	major, ok := num(tuple[0])
	if !ok {
		return models.OdooVersion{}, fmt.Errorf("version tuple major %v is not numeric", tuple[0])
	}
	minor, _ := num(tuple[1])

	v := models.OdooVersion{Major: major, Minor: minor, Edition: "unknown"}
	if len(tuple) > 2 {
		v.Micro, _ = num(tuple[2])
	}
	if len(tuple) > 3 {
		v.Level, _ = tuple[3].(string)
	}
	if len(tuple) > 4 {
		v.Serial, _ = num(tuple[4])
	}
	v.FullString = fmt.Sprintf("%d.%d", major, minor)
	v.Protocol = SelectProtocol(v)
	return v, nil
}

// SelectProtocol implements the protocol-selection table from spec §4.2:
// 14-16 use the legacy XML-RPC endpoint, 17-18 use the legacy JSON-RPC
// endpoint, and 19+ use the modern REST API. FallbackVersion runs its
// version 14 through this same table, which yields Legacy-XML.
func SelectProtocol(v models.OdooVersion) string {
	switch {
	case v.Major >= 19:
		return constants.ProtocolModernREST
	case v.Major >= 17:
		return constants.ProtocolLegacyJSON
	default:
		return constants.ProtocolLegacyXML
	}
}

// FallbackVersion is returned by the Connection Manager when every version
// probe fails (spec §4.2): "assume version 14 and use Legacy-XML with a
// warning."
func FallbackVersion() models.OdooVersion {
	v := models.OdooVersion{Major: 14, Minor: 0, Edition: "community", FullString: "14.0"}
	v.Protocol = SelectProtocol(v)
	return v
}

// Probe runs each candidate probe in order and returns the version reported
// by the first one to succeed. Callers should order probes from
// cheapest/most-likely to least, since the first successful probe wins
// regardless of which protocol it used. If every probe fails, the caller
// should use FallbackVersion and log a warning per spec §4.2 rather than
// treating the connection attempt as fatal.
func Probe(ctx context.Context, baseURL string, probes []VersionProbe) (models.OdooVersion, error) {
	var lastErr error
	for _, p := range probes {
		raw, err := p.ProbeVersion(ctx, baseURL)
		if err != nil {
			lastErr = fmt.Errorf("%s probe failed: %w", p.Protocol(), err)
			continue
		}
		v, err := ParseVersionString(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return v, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no version probes configured")
	}
	return models.OdooVersion{}, fmt.Errorf("version probe exhausted all protocols: %w", lastErr)
}
