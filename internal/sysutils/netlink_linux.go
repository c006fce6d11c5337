//go:build linux

package sysutils

import (
	"context"
	"errors"
	"syscall"

	"github.com/vishvananda/netlink"
)

// NetlinkNetwork manages addresses over rtnetlink without shelling out.
type NetlinkNetwork struct{}

func NewNetlinkNetwork() Network {
	return NetlinkNetwork{}
}

func (NetlinkNetwork) ListInterfaces(ctx context.Context) ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	return names, ctx.Err()
}

func (NetlinkNetwork) ListAddresses(ctx context.Context, iface string) ([]string, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return nil, err
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V6)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.IP.IsGlobalUnicast() {
			out = append(out, a.IP.String())
		}
	}
	return out, ctx.Err()
}

// AssignAddress runs the netlink call in its own goroutine so a stuck
// kernel round trip cannot outlive ctx.
func (NetlinkNetwork) AssignAddress(ctx context.Context, iface, addr string) Result {
	done := make(chan Result, 1)

	go func() {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			done <- Result{Detail: err.Error()}
			return
		}
		nlAddr, err := netlink.ParseAddr(addr + "/128")
		if err != nil {
			done <- Result{Detail: err.Error()}
			return
		}
		err = netlink.AddrAdd(link, nlAddr)
		switch {
		case err == nil:
			done <- Result{OK: true}
		case errors.Is(err, syscall.EEXIST):
			done <- Result{AlreadyPresent: true, Detail: err.Error()}
		default:
			done <- Result{Detail: err.Error()}
		}
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Result{Detail: ctx.Err().Error()}
	}
}

// DefaultNetwork picks the Network backend for this platform.
func DefaultNetwork(backend string, runner Runner) Network {
	if backend == "command" {
		return NewCommandNetwork(runner)
	}
	return NewNetlinkNetwork()
}
