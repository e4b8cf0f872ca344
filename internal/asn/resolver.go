package asn

import (
	"log"
	"net"
	"os"

	"github.com/oschwald/maxminddb-golang"
)

// Info describes the network a client address belongs to.
type Info struct {
	Number  int
	Org     string
	Hosting bool
}

// Resolver maps client addresses to their autonomous system using a
// GeoLite2-ASN database. A nil *Resolver is valid and resolves nothing.
type Resolver struct {
	reader *maxminddb.Reader
}

type record struct {
	Number int    `maxminddb:"autonomous_system_number"`
	Org    string `maxminddb:"autonomous_system_organization"`
}

// Open loads the MMDB at path. It returns nil when the file is missing or
// unreadable so callers can run without it.
func Open(path string) *Resolver {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("[asn] MMDB file not found at %s, client tagging disabled", path)
		return nil
	}

	reader, err := maxminddb.Open(path)
	if err != nil {
		log.Printf("[asn] Failed to open MMDB: %v, client tagging disabled", err)
		return nil
	}

	log.Printf("[asn] Loaded MMDB: %s", path)
	return &Resolver{reader: reader}
}

// Lookup resolves addr. Unparseable addresses and misses yield zero Info.
func (r *Resolver) Lookup(addr string) Info {
	if r == nil || r.reader == nil {
		return Info{}
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return Info{}
	}

	var rec record
	if err := r.reader.Lookup(ip, &rec); err != nil {
		return Info{}
	}

	return rec.info()
}

func (rec record) info() Info {
	info := Info{Number: rec.Number, Org: rec.Org}
	if org, ok := IsHosting(rec.Number); ok {
		info.Hosting = true
		info.Org = org
	}
	return info
}

func (r *Resolver) Loaded() bool {
	return r != nil && r.reader != nil
}

func (r *Resolver) Close() {
	if r != nil && r.reader != nil {
		r.reader.Close()
	}
}

// IsHosting reports whether asn belongs to a well-known cloud or VPS network.
func IsHosting(asn int) (string, bool) {
	org, ok := hostingASNs[asn]
	return org, ok
}

// hostingASNs lists cloud and VPS networks. Lookups from these are almost
// always scripted.
var hostingASNs = map[int]string{
	16509:  "Amazon.com / AWS",
	14618:  "Amazon.com / AWS",
	8075:   "Microsoft Azure",
	15169:  "Google Cloud",
	396982: "Google Cloud",
	45102:  "Alibaba Cloud",
	31898:  "Oracle Cloud",
	13335:  "Cloudflare",
	14061:  "DigitalOcean",
	20473:  "Vultr / Choopa",
	63949:  "Linode / Akamai",
	16276:  "OVHcloud",
	24940:  "Hetzner Online",
	51167:  "Contabo",
	60781:  "LeaseWeb",
}
