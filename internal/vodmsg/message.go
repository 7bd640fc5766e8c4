package vodmsg

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/toukoaozaki/vpnoverdns-reassembler/internal/wire"
)

// Verb classifies a Message by the non-retry variable key-set it carries.
type Verb int

const (
	Unknown Verb = iota
	OpenTicket
	RequestData
	CheckRequest
	FetchResponse
	CloseTicket
)

func (v Verb) String() string {
	switch v {
	case OpenTicket:
		return "OpenTicket"
	case RequestData:
		return "RequestData"
	case CheckRequest:
		return "CheckRequest"
	case FetchResponse:
		return "FetchResponse"
	case CloseTicket:
		return "CloseTicket"
	default:
		return "Unknown"
	}
}

// Message is a single parsed and normalized DNS query, classified into
// one of the five protocol verbs.
type Message struct {
	Version   string
	Verb      Verb
	Variables map[string]any
	Payload   wire.DataChunk
}

// numericLabels normalize to uint64; bf normalizes to []byte (hex
// decoded); ac and any other flag label is already a bool from parsing.
var numericLabels = map[string]bool{
	"id": true, "sz": true, "rn": true, "wr": true,
	"ck": true, "ln": true, "rd": true, "retry": true,
}

// normalize coerces the raw string/bool label values produced by
// parseName into their semantic Go types.
func normalize(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		switch {
		case numericLabels[key]:
			s, ok := value.(string)
			if !ok {
				return nil, &MalformedNameError{Reason: fmt.Sprintf("label %q must carry a value", key)}
			}
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, &MalformedNameError{Reason: fmt.Sprintf("label %q is not a decimal integer: %v", key, err)}
			}
			out[key] = n
		case key == "bf":
			s, ok := value.(string)
			if !ok {
				return nil, &MalformedNameError{Reason: "label \"bf\" must carry a value"}
			}
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, &MalformedNameError{Reason: fmt.Sprintf("label \"bf\" is not valid hex: %v", err)}
			}
			out[key] = b
		default:
			out[key] = value
		}
	}
	return out, nil
}

// Classify determines the verb from the non-retry variable key-set, per
// the classification table in the data model.
func Classify(vars map[string]any) Verb {
	keys := make(map[string]bool, len(vars))
	for k := range vars {
		if k == "retry" {
			continue
		}
		keys[k] = true
	}

	matches := func(want ...string) bool {
		if len(keys) != len(want) {
			return false
		}
		for _, w := range want {
			if !keys[w] {
				return false
			}
		}
		return true
	}

	switch {
	case matches("sz", "rn", "id"):
		return OpenTicket
	case matches("bf", "wr", "id"):
		return RequestData
	case matches("ck", "id"):
		return CheckRequest
	case matches("ln", "rd", "id"):
		return FetchResponse
	case matches("ac", "id"):
		return CloseTicket
	default:
		return Unknown
	}
}

// CheckErrorOnFetchResponse governs whether a two-byte "E??" payload on a
// FetchResponse message is treated as an error sentinel. Default false:
// FetchResponse payloads are opaque three-byte windows, and a two-byte
// payload beginning with 'E' can occur by coincidence. See the open
// question this resolves in DESIGN.md.
var CheckErrorOnFetchResponse = false

// ErrorCode reports whether the payload is a two-byte "E<code>" error
// sentinel, and if so, the code. Code 0x00 means success.
func (m Message) ErrorCode() (code byte, isErrorPayload bool) {
	if len(m.Payload.Data) == 2 && m.Payload.Data[0] == 'E' {
		return m.Payload.Data[1], true
	}
	return 0, false
}

// HasError reports whether the message should be treated as carrying a
// non-zero error code. FetchResponse messages are exempted unless
// CheckErrorOnFetchResponse is set.
func (m Message) HasError() bool {
	code, isErrorPayload := m.ErrorCode()
	if !isErrorPayload {
		return false
	}
	if m.Verb == FetchResponse && !CheckErrorOnFetchResponse {
		return false
	}
	return code != 0
}

// ParseMessage parses and normalizes a DNS dump record's (FQDN, answer)
// pair into a Message rooted at suffix (see NormalizeSuffix). It returns
// *MalformedNameError, *wire.MalformedIPError, *wire.OctetRangeError, or
// *UnknownVersionError on failure.
func ParseMessage(fqdn, answer, suffix string) (Message, error) {
	parsed, err := parseName(fqdn, suffix)
	if err != nil {
		return Message{}, err
	}
	if parsed.version != "0" {
		return Message{}, &UnknownVersionError{Version: parsed.version}
	}

	vars, err := normalize(parsed.raw)
	if err != nil {
		if mn, ok := err.(*MalformedNameError); ok {
			mn.FQDN = fqdn
		}
		return Message{}, err
	}

	payload, err := wire.IPv4ToChunk(answer)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Version:   parsed.version,
		Verb:      Classify(vars),
		Variables: vars,
		Payload:   payload,
	}, nil
}

// EncodeMessage is the exact inverse of ParseMessage: it renders msg back
// into the (FQDN, answer) pair that would parse to an equal Message.
func EncodeMessage(msg Message, suffix string) (fqdn, answer string, err error) {
	encoded := make(map[string]string, len(msg.Variables))
	flags := make(map[string]bool, len(msg.Variables))

	for key, value := range msg.Variables {
		switch {
		case key == "retry":
			n, ok := value.(uint64)
			if !ok {
				return "", "", fmt.Errorf("variable %q must be uint64, got %T", key, value)
			}
			encoded[key] = strconv.FormatUint(n, 10)
		case numericLabels[key]:
			n, ok := value.(uint64)
			if !ok {
				return "", "", fmt.Errorf("variable %q must be uint64, got %T", key, value)
			}
			encoded[key] = fmt.Sprintf("%08d", n)
		case key == "bf":
			b, ok := value.([]byte)
			if !ok {
				return "", "", fmt.Errorf("variable %q must be []byte, got %T", key, value)
			}
			encoded[key] = hex.EncodeToString(b)
		default:
			if b, ok := value.(bool); ok && b {
				flags[key] = true
			}
		}
	}

	fqdn = encodeName(msg.Version, encoded, flags, suffix)

	answer, err = wire.ChunkToIPv4(msg.Payload)
	if err != nil {
		return "", "", err
	}
	return fqdn, answer, nil
}
