// Package ticket implements the top-level reassembly state machine: a
// per-ticket-id record holding the random number, request length,
// request and response assemblers, and a sticky collision flag.
package ticket

import "github.com/toukoaozaki/vpnoverdns-reassembler/internal/reassembly"

// requestAlignment and responseAlignment are the fixed strides at which
// request and response bytes are split on the wire.
const (
	requestAlignment  = 30
	responseAlignment = 3
)

// optUint is a set-once-then-verify numeric field: the first observed
// value sticks, and any later divergent value is reported to the caller
// as a collision rather than overwriting it.
type optUint struct {
	set   bool
	value uint64
}

// setOrVerify assigns value if unset; if already set to a different
// value it reports a collision without overwriting the original.
func (o *optUint) setOrVerify(value uint64) (collided bool) {
	if !o.set {
		o.set = true
		o.value = value
		return false
	}
	return o.value != value
}

// State summarizes a ticket's progress for callers that want a coarse
// projection rather than the raw assembler internals.
type State int

const (
	Empty State = iota
	OpenedOnly
	RequestInFlight
	RequestComplete
	ResponseInFlight
	ResponseComplete
	Collided
)

func (s State) String() string {
	switch s {
	case OpenedOnly:
		return "OpenedOnly"
	case RequestInFlight:
		return "RequestInFlight"
	case RequestComplete:
		return "RequestComplete"
	case ResponseInFlight:
		return "ResponseInFlight"
	case ResponseComplete:
		return "ResponseComplete"
	case Collided:
		return "Collided"
	default:
		return "Empty"
	}
}

// Ticket is a single request/response exchange, keyed by an integer
// ticket id and mutated by Update as messages naming it arrive.
type Ticket struct {
	id        uint64
	collision bool

	randomNumber   optUint
	requestLength  optUint
	responseLength optUint

	requestAssembler  *reassembly.Assembler
	responseAssembler *reassembly.Assembler
}

func newTicket(id uint64) *Ticket {
	// Alignment is a fixed positive constant, so construction cannot
	// fail; swallowing the error here keeps callers from having to
	// handle an impossible case.
	requestAsm, _ := reassembly.New(requestAlignment, nil)
	responseAsm, _ := reassembly.New(responseAlignment, nil)
	return &Ticket{
		id:                id,
		requestAssembler:  requestAsm,
		responseAssembler: responseAsm,
	}
}

// ID returns the ticket's integer id.
func (t *Ticket) ID() uint64 { return t.id }

// Collision reports whether any conflicting observation has been made
// for this ticket. It is sticky: once true it never reverts to false.
func (t *Ticket) Collision() bool { return t.collision }

// RandomNumber returns the OpenTicket-declared random number, if any
// OpenTicket message has been observed for this ticket.
func (t *Ticket) RandomNumber() (value uint64, ok bool) {
	return t.randomNumber.value, t.randomNumber.set
}

// RequestLength returns the declared or deduced request length.
func (t *Ticket) RequestLength() (length int, ok bool) {
	if t.requestLength.set {
		return int(t.requestLength.value), true
	}
	if n, known := t.requestAssembler.Length(); known {
		return n, true
	}
	return 0, false
}

// ResponseLength returns the declared or deduced response length.
func (t *Ticket) ResponseLength() (length int, ok bool) {
	if t.responseLength.set {
		return int(t.responseLength.value), true
	}
	if n, known := t.responseAssembler.Length(); known {
		return n, true
	}
	return 0, false
}

// RequestData returns the fully reassembled request bytes, if complete.
func (t *Ticket) RequestData() (data []byte, ok bool) {
	b, err := t.requestAssembler.GetBytes(false)
	if err != nil {
		return nil, false
	}
	return b, true
}

// RequestDataIncomplete returns whatever request bytes have been
// assembled so far, with unwritten regions left zero.
func (t *Ticket) RequestDataIncomplete() []byte {
	b, _ := t.requestAssembler.GetBytes(true)
	return b
}

// RawResponseData returns the fully reassembled response bytes, if
// complete. Any zlib decompression of this buffer is a consumer concern.
func (t *Ticket) RawResponseData() (data []byte, ok bool) {
	b, err := t.responseAssembler.GetBytes(false)
	if err != nil {
		return nil, false
	}
	return b, true
}

// RawResponseDataIncomplete returns whatever response bytes have been
// assembled so far, with unwritten regions left zero.
func (t *Ticket) RawResponseDataIncomplete() []byte {
	b, _ := t.responseAssembler.GetBytes(true)
	return b
}

// IsBinary reports whether the reassembled request looks binary (any
// non-zero leading byte) or text (a zero leading byte). ok is false when
// the request is absent or incomplete, in which case the result is
// undefined per spec.
func (t *Ticket) IsBinary() (isBinary bool, ok bool) {
	data, complete := t.RequestData()
	if !complete || len(data) == 0 {
		return false, false
	}
	return data[0] != 0, true
}

// State projects the ticket's progress onto the coarse state machine
// summary. Collision takes priority in this projection even though the
// flag itself is tracked orthogonally to progress.
func (t *Ticket) State() State {
	if t.collision {
		return Collided
	}
	switch {
	case t.responseAssembler.Complete():
		return ResponseComplete
	case t.responseAssembler.HasData():
		return ResponseInFlight
	case t.requestAssembler.Complete():
		return RequestComplete
	case t.requestAssembler.HasData():
		return RequestInFlight
	case t.randomNumber.set || t.requestLength.set:
		return OpenedOnly
	default:
		return Empty
	}
}
