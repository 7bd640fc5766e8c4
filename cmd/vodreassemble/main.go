// Command vodreassemble converts a DNS dump into a serialized ticket
// database: the CLI front end and output serializer that sit around the
// core reassembly engine.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/toukoaozaki/vpnoverdns-reassembler/internal/dnsdump"
	"github.com/toukoaozaki/vpnoverdns-reassembler/internal/ticket"
	"github.com/toukoaozaki/vpnoverdns-reassembler/internal/vodmsg"
)

func main() {
	srcType := flag.String("src-type", "auto", "type of the source data: auto, dns_dump")
	destType := flag.String("dest-type", "auto", "type of the destination data: auto, ticket_db")
	suffix := flag.String("suffix", vodmsg.DefaultSuffix, "FQDN suffix the ticket labels are rooted at")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: vodreassemble [flags] <src> <dest>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	src, dest := flag.Arg(0), flag.Arg(1)

	if deduceType(*srcType, "dns_dump") != "dns_dump" {
		log.Fatalf("unsupported source type %q", *srcType)
	}
	if deduceType(*destType, "ticket_db") != "ticket_db" {
		log.Fatalf("unsupported destination type %q", *destType)
	}

	records, err := readDNSDump(src)
	if err != nil {
		log.Fatalf("reading %s: %v", src, err)
	}
	log.Printf("read %d DNS dump records from %s", len(records), src)

	db, errs := ticket.BuildFromRecords(records, *suffix)
	for _, err := range errs {
		log.Printf("record rejected: %v", err)
	}
	log.Printf("reassembled %d tickets", db.Len())

	if err := writeTicketDB(dest, db); err != nil {
		log.Fatalf("writing %s: %v", dest, err)
	}
}

func deduceType(flagValue, onlyKnown string) string {
	if flagValue == "auto" {
		return onlyKnown
	}
	return flagValue
}

func readDNSDump(path string) ([]ticket.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := dnsdump.ReadAll(f)
	if err != nil {
		return nil, err
	}
	records := make([]ticket.Record, len(lines))
	for i, l := range lines {
		records[i] = ticket.Record{FQDN: l.FQDN, Answer: l.Value}
	}
	return records, nil
}

// ticketView is the JSON projection of a ticket.Ticket: the core engine
// only guarantees the in-memory model, so this shape is entirely this
// command's own serialization choice.
type ticketView struct {
	TicketID        uint64  `json:"ticket_id"`
	Collision       bool    `json:"collision"`
	State           string  `json:"state"`
	RandomNumber    *uint64 `json:"random_number,omitempty"`
	RequestLength   *int    `json:"request_length,omitempty"`
	RequestData     string  `json:"request_data,omitempty"`
	ResponseLength  *int    `json:"response_length,omitempty"`
	RawResponseData string  `json:"raw_response_data,omitempty"`
	IsBinary        *bool   `json:"is_binary,omitempty"`
}

func writeTicketDB(path string, db *ticket.Database) error {
	views := make([]ticketView, 0, db.Len())
	for _, tk := range db.All() {
		v := ticketView{
			TicketID:  tk.ID(),
			Collision: tk.Collision(),
			State:     tk.State().String(),
		}
		if rn, ok := tk.RandomNumber(); ok {
			v.RandomNumber = &rn
		}
		if n, ok := tk.RequestLength(); ok {
			v.RequestLength = &n
		}
		if data, ok := tk.RequestData(); ok {
			v.RequestData = base64.StdEncoding.EncodeToString(data)
		}
		if n, ok := tk.ResponseLength(); ok {
			v.ResponseLength = &n
		}
		if data, ok := tk.RawResponseData(); ok {
			v.RawResponseData = base64.StdEncoding.EncodeToString(data)
		}
		if isBinary, ok := tk.IsBinary(); ok {
			v.IsBinary = &isBinary
		}
		views = append(views, v)
	}

	// Write atomically: a truncated or partially-written ticket
	// database is worse than a stale one.
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(views); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
