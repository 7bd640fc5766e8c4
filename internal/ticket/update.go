package ticket

import (
	"github.com/toukoaozaki/vpnoverdns-reassembler/internal/reassembly"
	"github.com/toukoaozaki/vpnoverdns-reassembler/internal/vodmsg"
)

// checkRequestLengthPrefix is the ASCII 'L' marker that precedes a
// big-endian 24-bit response length in a CheckRequest payload.
const checkRequestLengthPrefix = 'L'

// Update dispatches msg to the verb-specific handler and mutates the
// ticket's fields accordingly. Collision-family assembler errors are
// recorded on the ticket and swallowed (the offending message is
// dropped); structural errors are returned to the caller, since they
// indicate a fault in the data source rather than a protocol conflict.
func (t *Ticket) Update(msg vodmsg.Message) error {
	switch msg.Verb {
	case vodmsg.OpenTicket:
		t.updateOpenTicket(msg)
		return nil
	case vodmsg.RequestData:
		return t.updateRequestData(msg)
	case vodmsg.CheckRequest:
		t.updateCheckRequest(msg)
		return nil
	case vodmsg.FetchResponse:
		return t.updateFetchResponse(msg)
	case vodmsg.CloseTicket:
		return nil
	default:
		return nil
	}
}

func (t *Ticket) updateOpenTicket(msg vodmsg.Message) {
	rn := msg.Variables["rn"].(uint64)
	sz := msg.Variables["sz"].(uint64)
	if t.randomNumber.setOrVerify(rn) {
		t.collision = true
	}
	if t.requestLength.setOrVerify(sz) {
		t.collision = true
	}
	// Declaring the length up front lets the assembler itself enforce
	// the exact chunk boundary (ChunkPastEndError) instead of deducing
	// it later from a short final chunk.
	if err := t.requestAssembler.SetLength(int(sz)); err != nil {
		t.collision = true
	}
}

func (t *Ticket) updateRequestData(msg vodmsg.Message) error {
	bf := msg.Variables["bf"].([]byte)
	wr := msg.Variables["wr"].(uint64)

	dropped, err := t.assemblerErr(t.requestAssembler.Add(bf, int(wr)))
	if err != nil {
		return err
	}
	if dropped {
		return nil
	}
	if n, known := t.requestAssembler.Length(); known {
		if t.requestLength.setOrVerify(uint64(n)) {
			t.collision = true
		}
	}
	return nil
}

func (t *Ticket) updateCheckRequest(msg vodmsg.Message) {
	payload := msg.Payload.Data
	if len(payload) != 4 || payload[0] != checkRequestLengthPrefix {
		return
	}
	length := uint64(payload[1])<<16 | uint64(payload[2])<<8 | uint64(payload[3])
	if t.responseLength.setOrVerify(length) {
		t.collision = true
	}
	if err := t.responseAssembler.SetLength(int(length)); err != nil {
		t.collision = true
	}
}

func (t *Ticket) updateFetchResponse(msg vodmsg.Message) error {
	ln := msg.Variables["ln"].(uint64)
	rd := msg.Variables["rd"].(uint64)
	offset := int(rd) + msg.Payload.Offset

	dropped, err := t.assemblerErr(t.responseAssembler.Add(msg.Payload.Data, offset))
	if err != nil {
		return err
	}
	if dropped {
		return nil
	}
	if n, known := t.responseAssembler.Length(); known {
		if t.responseLength.setOrVerify(uint64(n)) {
			t.collision = true
		}
	}
	if ln < 48 {
		total := rd + ln
		if t.responseLength.setOrVerify(total) {
			t.collision = true
		}
	}
	return nil
}

// assemblerErr records collision-family assembler failures on the
// ticket and reports the message as dropped (per spec, the offending
// message stops being processed any further); any other error is a
// structural fault and is returned unchanged, also dropping the
// message at this field but leaving the fault for the caller to
// handle.
func (t *Ticket) assemblerErr(err error) (dropped bool, structural error) {
	if err == nil {
		return false, nil
	}
	switch err.(type) {
	case *reassembly.ChunkCollisionError, *reassembly.ChunkPastEndError:
		t.collision = true
		return true, nil
	default:
		return true, err
	}
}
