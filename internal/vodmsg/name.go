// Package vodmsg decomposes a DNS query name and its IPv4 answer into a
// classified, normalized Message, and encodes a Message back into the
// inverse (name, answer) pair.
//
// The name grammar is:
//
//	FQDN  := (FLAG ".")* (VAR "-" VALUE ".")+ "v" VERSION "." SUFFIX
//
// matched anchored and case-sensitively against the configured suffix.
package vodmsg

import (
	"strings"

	"github.com/miekg/dns"
)

// DefaultSuffix is the zone under which every ticket's labels are rooted
// when no caller-supplied suffix is given.
const DefaultSuffix = "tun.vpnoverdns.com."

// NormalizeSuffix strips a leading dot and guarantees a trailing one.
// dns.Fqdn supplies only the trailing dot, so the leading dot is removed
// separately first.
func NormalizeSuffix(suffix string) string {
	suffix = strings.TrimPrefix(suffix, ".")
	return dns.Fqdn(suffix)
}

// parsedName is the raw result of splitting an FQDN against the grammar,
// before numeric/hex normalization.
type parsedName struct {
	version string
	// raw holds, per label, either a bool (flag label) or a string
	// (the VALUE half of a VAR-VALUE label). Last VALUE for a repeated
	// VAR wins, per spec.
	raw map[string]any
}

// parseName splits fqdn against the grammar rooted at suffix. suffix must
// already be normalized (see NormalizeSuffix).
func parseName(fqdn, suffix string) (parsedName, error) {
	full := dns.Fqdn(fqdn)

	if !dns.IsSubDomain(suffix, full) {
		return parsedName{}, &MalformedNameError{FQDN: fqdn, Reason: "does not end in configured suffix"}
	}
	// dns.IsSubDomain compares case-insensitively; the grammar is
	// case-sensitive for the suffix, so re-check exactly.
	if !strings.HasSuffix(full, suffix) {
		return parsedName{}, &MalformedNameError{FQDN: fqdn, Reason: "suffix case mismatch"}
	}

	prefix := strings.TrimSuffix(full, suffix)
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return parsedName{}, &MalformedNameError{FQDN: fqdn, Reason: "no labels before suffix"}
	}

	labels := strings.Split(prefix, ".")
	versionLabel := labels[len(labels)-1]
	labels = labels[:len(labels)-1]

	if !strings.HasPrefix(versionLabel, "v") || len(versionLabel) < 2 {
		return parsedName{}, &MalformedNameError{FQDN: fqdn, Reason: "missing version label"}
	}
	version := versionLabel[1:]

	if len(labels) == 0 {
		return parsedName{}, &MalformedNameError{FQDN: fqdn, Reason: "no var-value labels"}
	}

	raw := make(map[string]any, len(labels))
	sawVarValue := false
	for _, label := range labels {
		if label == "" {
			return parsedName{}, &MalformedNameError{FQDN: fqdn, Reason: "empty label"}
		}
		if idx := strings.IndexByte(label, '-'); idx > 0 && idx < len(label)-1 {
			variable, value := label[:idx], label[idx+1:]
			raw[variable] = value
			sawVarValue = true
			continue
		}
		// A flag label. The grammar requires all flags to precede the
		// var-value run, so a flag seen after one is malformed.
		if sawVarValue {
			return parsedName{}, &MalformedNameError{FQDN: fqdn, Reason: "flag label after var-value label"}
		}
		raw[label] = true
	}
	if !sawVarValue {
		return parsedName{}, &MalformedNameError{FQDN: fqdn, Reason: "no var-value labels"}
	}

	return parsedName{version: version, raw: raw}, nil
}

// labelOrder is the fixed emission order so the wire representation of
// a given Message is always the same bytes.
var labelOrder = []string{"retry", "sz", "rn", "bf", "wr", "ck", "ln", "rd", "ac", "id"}

// encodeName is the exact inverse of parseName for a normalized variable
// map. Values must already be in their wire string form (see
// EncodeMessage in message.go).
func encodeName(version string, encoded map[string]string, flags map[string]bool, suffix string) string {
	var b strings.Builder
	for _, label := range labelOrder {
		if flags[label] {
			b.WriteString(label)
			b.WriteByte('.')
			continue
		}
		if v, ok := encoded[label]; ok {
			b.WriteString(label)
			b.WriteByte('-')
			b.WriteString(v)
			b.WriteByte('.')
		}
	}
	b.WriteByte('v')
	b.WriteString(version)
	b.WriteByte('.')
	b.WriteString(suffix)
	return b.String()
}
