package capture

//
// DNS
//
// Decoding DNS messages carried by captured datagrams.
//

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// DNSPort is the well known DNS port.
const DNSPort = 53

// DNSQuestion is a question of a DNS message.
type DNSQuestion struct {
	// Name is the queried name without the trailing dot.
	Name string

	// Type is the query type (e.g., "A").
	Type string
}

// DNSAnswer is a resource record in the answer section.
type DNSAnswer struct {
	// Name is the owner name without the trailing dot.
	Name string

	// Type is the record type (e.g., "AAAA").
	Type string

	// Data is the IP address for A/AAAA and the target for CNAME.
	Data string
}

// DNSMessage is the summary of a DNS message.
type DNSMessage struct {
	// ID is the query ID.
	ID uint16

	// Response is true for responses.
	Response bool

	// Rcode is the response code (e.g., "NOERROR").
	Rcode string

	// Questions contains the questions.
	Questions []DNSQuestion

	// Answers contains the A, AAAA and CNAME answers.
	Answers []DNSAnswer
}

// Describe returns a short description of the message.
func (m *DNSMessage) Describe() string {
	var qs []string
	for _, q := range m.Questions {
		qs = append(qs, q.Type+"? "+q.Name)
	}
	if !m.Response {
		return fmt.Sprintf("%d %s", m.ID, strings.Join(qs, " "))
	}
	return fmt.Sprintf("%d %s %s %d answers", m.ID, m.Rcode, strings.Join(qs, " "), len(m.Answers))
}

// decodeDNS decodes a DNS message using miekg/dns.
func decodeDNS(payload []byte) (*DNSMessage, error) {
	msg := &dns.Msg{}
	if err := msg.Unpack(payload); err != nil {
		return nil, err
	}
	out := &DNSMessage{
		ID:       msg.Id,
		Response: msg.Response,
		Rcode:    dns.RcodeToString[msg.Rcode],
	}
	for _, q := range msg.Question {
		out.Questions = append(out.Questions, DNSQuestion{
			Name: strings.TrimSuffix(q.Name, "."),
			Type: dns.TypeToString[q.Qtype],
		})
	}
	for _, rr := range msg.Answer {
		hdr := rr.Header()
		ans := DNSAnswer{
			Name: strings.TrimSuffix(hdr.Name, "."),
			Type: dns.TypeToString[hdr.Rrtype],
		}
		switch v := rr.(type) {
		case *dns.A:
			ans.Data = v.A.String()
		case *dns.AAAA:
			ans.Data = v.AAAA.String()
		case *dns.CNAME:
			ans.Data = strings.TrimSuffix(v.Target, ".")
		default:
			continue
		}
		out.Answers = append(out.Answers, ans)
	}
	return out, nil
}
