package ticket

import (
	"github.com/toukoaozaki/vpnoverdns-reassembler/internal/vodmsg"
	"github.com/toukoaozaki/vpnoverdns-reassembler/internal/wire"
)

// Record is a single input line: a DNS name and the IPv4 literal carried
// in its A-record answer. It is the ticket engine's only input shape —
// whatever reads a DNS dump or a live capture produces these.
type Record struct {
	FQDN   string
	Answer string
}

// Database is an append-only, insertion-ordered mapping from ticket id
// to Ticket. It owns every ticket it creates; there is no internal
// locking, so a single Database must belong to one caller (see the
// sharding recommendation for parallel builds).
type Database struct {
	suffix  string
	tickets map[uint64]*Ticket
	order   []uint64
}

// NewDatabase constructs an empty Database rooted at suffix (see
// vodmsg.NormalizeSuffix; pass vodmsg.DefaultSuffix for the standard
// zone).
func NewDatabase(suffix string) *Database {
	return &Database{
		suffix:  vodmsg.NormalizeSuffix(suffix),
		tickets: make(map[uint64]*Ticket),
	}
}

// BuildFromRecords ingests every record in order, returning the
// resulting Database and the structural/version failures encountered
// along the way (low-level parse failures are recovered silently and
// never appear here; see Ingest).
func BuildFromRecords(records []Record, suffix string) (*Database, []error) {
	db := NewDatabase(suffix)
	var errs []error
	for _, r := range records {
		if err := db.Ingest(r.FQDN, r.Answer); err != nil {
			errs = append(errs, err)
		}
	}
	return db, errs
}

// Ingest parses and dispatches a single record. MalformedName,
// MalformedIP, and OctetRange failures are dropped silently, matching
// the engine's treatment of untrusted wire noise. UnknownVersion and any
// structural assembler fault are returned to the caller rather than
// swallowed.
func (db *Database) Ingest(fqdn, answer string) error {
	msg, err := vodmsg.ParseMessage(fqdn, answer, db.suffix)
	if err != nil {
		switch err.(type) {
		case *vodmsg.MalformedNameError, *wire.MalformedIPError, *wire.OctetRangeError:
			return nil
		default:
			return err
		}
	}
	if msg.HasError() {
		return nil
	}

	id, ok := ticketID(msg)
	if !ok {
		return nil
	}
	return db.getOrCreate(id).Update(msg)
}

// ticketID derives a message's ticket id: OpenTicket messages carry it
// as the big-endian value of the answer payload bytes; every other verb
// carries it in the normalized "id" variable.
func ticketID(msg vodmsg.Message) (uint64, bool) {
	if msg.Verb == vodmsg.OpenTicket {
		if len(msg.Payload.Data) == 0 {
			return 0, false
		}
		var id uint64
		for _, b := range msg.Payload.Data {
			id = (id << 8) | uint64(b)
		}
		return id, true
	}
	if v, ok := msg.Variables["id"]; ok {
		if n, ok := v.(uint64); ok {
			return n, true
		}
	}
	return 0, false
}

func (db *Database) getOrCreate(id uint64) *Ticket {
	t, ok := db.tickets[id]
	if !ok {
		t = newTicket(id)
		db.tickets[id] = t
		db.order = append(db.order, id)
	}
	return t
}

// Get looks up a ticket by id.
func (db *Database) Get(id uint64) (*Ticket, bool) {
	t, ok := db.tickets[id]
	return t, ok
}

// Len reports the number of tickets in the database.
func (db *Database) Len() int { return len(db.order) }

// All returns every ticket, in the order each was first observed.
func (db *Database) All() []*Ticket {
	out := make([]*Ticket, len(db.order))
	for i, id := range db.order {
		out[i] = db.tickets[id]
	}
	return out
}
