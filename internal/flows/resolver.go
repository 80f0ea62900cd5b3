package flows

import (
	"net"

	"github.com/smartdiet/netanalyzer/internal/capture"
)

// Resolver maps addresses to the names that resolved to them
// according to the DNS responses seen in the capture.
type Resolver struct {
	names map[string]string
}

// NewResolver builds a Resolver from the DNS responses among the
// packets. When an address appears in several responses, the first
// one wins. Answers reached through CNAMEs are mapped to the name
// the application asked for.
func NewResolver(packets []*capture.Packet) *Resolver {
	r := &Resolver{names: map[string]string{}}
	for _, p := range packets {
		if p.DNS == nil || !p.DNS.Response || len(p.DNS.Questions) < 1 {
			continue
		}
		qname := p.DNS.Questions[0].Name
		for _, ans := range p.DNS.Answers {
			if ans.Type != "A" && ans.Type != "AAAA" {
				continue
			}
			ip := net.ParseIP(ans.Data)
			if ip == nil {
				continue
			}
			if _, found := r.names[ip.String()]; !found {
				r.names[ip.String()] = qname
			}
		}
	}
	return r
}

// Lookup returns the name for the given address or an empty string.
func (r *Resolver) Lookup(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return r.names[ip.String()]
}

// Len returns the number of known addresses.
func (r *Resolver) Len() int {
	return len(r.names)
}
