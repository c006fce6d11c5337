// Package addrgen produces random IPv6 addresses inside a configured
// prefix and subnet.
package addrgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
)

// Hextets is the number of 16-bit groups in an IPv6 address.
const Hextets = 8

// ParseHextets splits a colon-separated group list such as "2001:db8:1"
// into lower-case hextets. An empty string yields no hextets.
func ParseHextets(s string) ([]string, error) {
	s = strings.Trim(strings.TrimSpace(s), ":")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ":")
	for i, p := range parts {
		if len(p) == 0 || len(p) > 4 {
			return nil, fmt.Errorf("invalid hextet %q in %q", p, s)
		}
		for _, c := range p {
			if !isHex(c) {
				return nil, fmt.Errorf("invalid hextet %q in %q", p, s)
			}
		}
		parts[i] = strings.ToLower(p)
	}
	return parts, nil
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Generator fills the host part of prefix+subnet with random hextets.
type Generator struct {
	Prefix []string
	Subnet []string

	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

// New returns a Generator using crypto/rand.
func New(prefix, subnet []string) *Generator {
	return &Generator{Prefix: prefix, Subnet: subnet}
}

// Fixed is the number of configured hextets.
func (g *Generator) Fixed() int {
	return len(g.Prefix) + len(g.Subnet)
}

// Usable reports whether there is room left for random bits.
func (g *Generator) Usable() bool {
	return Hextets-g.Fixed() > 0
}

// Next returns a fresh address, or false when the configuration leaves no
// host bits or the random source fails.
func (g *Generator) Next() (string, bool) {
	if !g.Usable() {
		return "", false
	}

	r := g.Rand
	if r == nil {
		r = rand.Reader
	}

	random := Hextets - g.Fixed()
	buf := make([]byte, 2*random)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", false
	}

	groups := make([]string, 0, Hextets)
	groups = append(groups, g.Prefix...)
	groups = append(groups, g.Subnet...)
	for i := 0; i < random; i++ {
		groups = append(groups, fmt.Sprintf("%04x", binary.BigEndian.Uint16(buf[2*i:])))
	}
	return strings.Join(groups, ":"), true
}

// Generate is shorthand for New(prefix, subnet).Next().
func Generate(prefix, subnet []string) (string, bool) {
	return New(prefix, subnet).Next()
}

// Contains reports whether addr lies inside the configured prefix+subnet.
func (g *Generator) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() != nil || g.Fixed() == 0 || g.Fixed() > Hextets {
		return false
	}
	ip = ip.To16()

	fixed := append(append([]string{}, g.Prefix...), g.Subnet...)
	for i, h := range fixed {
		var want uint16
		if _, err := fmt.Sscanf(h, "%x", &want); err != nil {
			return false
		}
		if binary.BigEndian.Uint16(ip[2*i:]) != want {
			return false
		}
	}
	return true
}
