package vodmsg

import "fmt"

// MalformedNameError reports an FQDN that does not match the expected
// label grammar: zero or more flag labels, one or more "var-value"
// labels, a version label, then the configured suffix.
type MalformedNameError struct {
	FQDN   string
	Reason string
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("malformed name %q: %s", e.FQDN, e.Reason)
}

// UnknownVersionError reports a version label other than "0". Unlike
// MalformedName and MalformedIP, the engine does not swallow this —
// it is surfaced to the caller per spec.
type UnknownVersionError struct {
	Version string
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("unknown protocol version %q", e.Version)
}
