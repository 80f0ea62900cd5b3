package flows

//
// Geolocation
//
// ASN and country lookups using MaxMind databases.
//

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"net"
	"os"

	"github.com/ooni/probe-assets/assets"
	"github.com/oschwald/geoip2-golang"
)

// GeoDB looks up the ASN and the country of IP addresses.
type GeoDB struct {
	asn     *geoip2.Reader
	country *geoip2.Reader
	digest  string
}

// OpenGeoDB opens the given ASN and country databases in MaxMind
// format. An empty path selects the database embedded in probe-assets.
func OpenGeoDB(asnPath, countryPath string) (*GeoDB, error) {
	h := sha256.New()
	asn, err := openReader(asnPath, assets.ASNDatabaseData, h)
	if err != nil {
		return nil, err
	}
	country, err := openReader(countryPath, assets.CountryDatabaseData, h)
	if err != nil {
		asn.Close()
		return nil, err
	}
	return &GeoDB{asn: asn, country: country, digest: hex.EncodeToString(h.Sum(nil))}, nil
}

func openReader(path string, embedded func() []byte, h hash.Hash) (*geoip2.Reader, error) {
	data := embedded()
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	sum := sha256.Sum256(data)
	h.Write(sum[:])
	return geoip2.FromBytes(data)
}

// Digest identifies the content of the ASN and country databases.
func (g *GeoDB) Digest() string {
	return g.digest
}

// Lookup returns the ASN, the organization and the country code of the
// given address. Private and loopback addresses are not looked up. On
// failure the corresponding return values are zero.
func (g *GeoDB) Lookup(ip net.IP) (asn uint, org string, cc string) {
	if ip == nil || ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return 0, "", ""
	}
	if rec, err := g.asn.ASN(ip); err == nil {
		asn, org = rec.AutonomousSystemNumber, rec.AutonomousSystemOrganization
	}
	if rec, err := g.country.Country(ip); err == nil {
		cc = rec.Country.IsoCode
	}
	return
}

// Close closes the databases.
func (g *GeoDB) Close() error {
	err1 := g.asn.Close()
	err2 := g.country.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
