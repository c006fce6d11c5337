// Package config reads the relay configuration from the environment once at
// startup. The resulting Config is never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/qza666/v6relay/internal/addrgen"
)

type Config struct {
	Version string

	Listen        string
	ForwardListen string

	IPv6Prefix []string
	IPv6Subnet []string
	Interface  string
	// NetworkBackend is "netlink" or "command".
	NetworkBackend string
	AssignAddress  bool

	RequestTimeout time.Duration
	AssignTimeout  time.Duration
	ProbeTimeout   time.Duration
	ProbeTarget    string

	UpstreamProxies []string
	// Resolver is "", "system", "dot" or "doh".
	Resolver string

	Debug     bool
	LogFormat string

	AutoForwarding    bool
	AutoRoute         bool
	AutoIpNoLocalBind bool

	AuthConfig AuthConfig
}

type AuthConfig struct {
	TokenSeed string
	Required  bool
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv loads the configuration from the process environment.
func FromEnv() (*Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from lookup, applying defaults for unset keys.
func Load(lookup LookupFunc) (*Config, error) {
	p := parser{lookup: lookup}
	cfg := &Config{
		Listen:            p.str("LISTEN", ":8080"),
		ForwardListen:     p.str("FORWARD_LISTEN", ""),
		IPv6Prefix:        p.hextets("IPV6_PREFIX"),
		IPv6Subnet:        p.hextets("IPV6_SUBNET"),
		Interface:         p.str("INTERFACE", "eth0"),
		NetworkBackend:    p.str("NETWORK_BACKEND", "netlink"),
		AssignAddress:     p.boolean("ASSIGN_ADDRESS", true),
		RequestTimeout:    p.seconds("REQUEST_TIMEOUT", 30),
		AssignTimeout:     p.duration("ASSIGN_TIMEOUT", 2*time.Second),
		ProbeTimeout:      p.duration("PROBE_TIMEOUT", 2*time.Second),
		ProbeTarget:       p.str("PROBE_TARGET", "[2001:4860:4860::8888]:53"),
		UpstreamProxies:   p.list("UPSTREAM_PROXIES"),
		Resolver:          p.str("RESOLVER", "system"),
		Debug:             p.boolean("DEBUG", false),
		LogFormat:         p.str("LOG_FORMAT", "text"),
		AutoForwarding:    p.boolean("AUTO_FORWARDING", false),
		AutoRoute:         p.boolean("AUTO_ROUTE", false),
		AutoIpNoLocalBind: p.boolean("AUTO_NONLOCAL_BIND", false),
		AuthConfig: AuthConfig{
			TokenSeed: p.str("TOKEN_SEED", "proxy-access"),
			Required:  p.boolean("REQUIRE_TOKEN", true),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every inconsistency in cfg.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("LISTEN must not be empty"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if len(c.IPv6Subnet) > 0 && len(c.IPv6Prefix) == 0 {
		errs = append(errs, errors.New("IPV6_SUBNET requires IPV6_PREFIX"))
	}
	if n := len(c.IPv6Prefix) + len(c.IPv6Subnet); n >= addrgen.Hextets {
		errs = append(errs, fmt.Errorf("IPV6_PREFIX and IPV6_SUBNET use %d hextets, leaving no host bits", n))
	}
	switch c.NetworkBackend {
	case "netlink", "command":
	default:
		errs = append(errs, fmt.Errorf("NETWORK_BACKEND %q must be netlink or command", c.NetworkBackend))
	}
	switch c.Resolver {
	case "", "none", "system", "dot", "doh":
	default:
		errs = append(errs, fmt.Errorf("RESOLVER %q must be system, dot or doh", c.Resolver))
	}
	return errors.Join(errs...)
}

// CIDR returns the configured prefix+subnet as a CIDR string, or "" when no
// prefix is set.
func (c *Config) CIDR() string {
	fixed := append(append([]string{}, c.IPv6Prefix...), c.IPv6Subnet...)
	if len(fixed) == 0 || len(fixed) >= addrgen.Hextets {
		return ""
	}
	return fmt.Sprintf("%s::/%d", strings.Join(fixed, ":"), 16*len(fixed))
}

type parser struct {
	lookup LookupFunc
	errs   []error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) seconds(key string, def int) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return time.Duration(def) * time.Second
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return time.Duration(def) * time.Second
	}
	return time.Duration(n * float64(time.Second))
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) hextets(key string) []string {
	v, _ := p.raw(key)
	h, err := addrgen.ParseHextets(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return h
}

func (p *parser) list(key string) []string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
