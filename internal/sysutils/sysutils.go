package sysutils

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner runs an external command and returns its combined output.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

// ExecRunner returns a Runner backed by os/exec.
func ExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s failed: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Host applies the one-off kernel settings a rotating IPv6 egress needs.
type Host struct {
	runner Runner
}

func NewHost(runner Runner) *Host {
	if runner == nil {
		runner = ExecRunner()
	}
	return &Host{runner: runner}
}

func (h *Host) SetV6Forwarding(ctx context.Context) error {
	_, err := h.runner.Output(ctx, "sysctl", "-w", "net.ipv6.conf.all.forwarding=1")
	return err
}

// AddV6Route routes the whole prefix to the local interface so any address
// inside it can be used as a source.
func (h *Host) AddV6Route(ctx context.Context, cidr, iface string) error {
	_, err := h.runner.Output(ctx, "ip", "-6", "route", "replace", "local", cidr, "dev", iface)
	return err
}

func (h *Host) SetIpNonLocalBind(ctx context.Context) error {
	_, err := h.runner.Output(ctx, "sysctl", "-w", "net.ipv6.ip_nonlocal_bind=1")
	return err
}
