// Package sysutils talks to the host network stack: it verifies the egress
// interface, binds generated addresses to it and lists what is bound.
//
// The host is reached through the Network capability so tests and
// unsupported platforms can swap in another implementation.
package sysutils

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	relayerr "github.com/qza666/v6relay/internal/errors"
)

// ErrUnsupported is returned by Network implementations on platforms that
// cannot manage interface addresses.
var ErrUnsupported = errors.New("interface management not supported on this platform")

// Result describes the outcome of an address assignment.
type Result struct {
	OK             bool
	AlreadyPresent bool
	Detail         string
}

// Network is the host capability used by Manager.
type Network interface {
	ListInterfaces(ctx context.Context) ([]string, error)
	ListAddresses(ctx context.Context, iface string) ([]string, error)
	AssignAddress(ctx context.Context, iface, addr string) Result
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Interface string
	Assign    bool
	Timeout   time.Duration
}

// Manager verifies the egress interface and binds addresses to it.
type Manager struct {
	net Network
	cfg ManagerConfig
}

func NewManager(n Network, cfg ManagerConfig) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Manager{net: n, cfg: cfg}
}

// Supported reports whether the platform can manage interface addresses.
func (m *Manager) Supported(ctx context.Context) bool {
	_, err := m.net.ListInterfaces(ctx)
	return !errors.Is(err, ErrUnsupported)
}

// Verify checks that the configured interface exists. It returns
// ErrUnsupported on incapable platforms and a configuration error when the
// interface is missing.
func (m *Manager) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	names, err := m.net.ListInterfaces(ctx)
	if errors.Is(err, ErrUnsupported) {
		return ErrUnsupported
	}
	if err != nil {
		return relayerr.Configuration("failed to list interfaces", err)
	}
	if !slices.Contains(names, m.cfg.Interface) {
		return relayerr.Configuration(fmt.Sprintf("interface %s not found", m.cfg.Interface), nil)
	}
	return nil
}

// Assign binds addr to the interface with a /128 mask. An address that is
// already bound counts as success. With assignment disabled the call is a
// no-op and addresses are expected to be routable already.
func (m *Manager) Assign(ctx context.Context, addr string) error {
	if !m.cfg.Assign {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	res := m.net.AssignAddress(ctx, m.cfg.Interface, addr)
	if res.OK || res.AlreadyPresent {
		return nil
	}
	return relayerr.Configuration(fmt.Sprintf("failed to assign %s to %s", addr, m.cfg.Interface), errors.New(res.Detail))
}

// Addresses lists the global IPv6 addresses currently bound to the
// interface.
func (m *Manager) Addresses(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return m.net.ListAddresses(ctx, m.cfg.Interface)
}

// Interface returns the managed interface name.
func (m *Manager) Interface() string {
	return m.cfg.Interface
}
