package sysutils

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
)

// CommandNetwork drives the iproute2 `ip` tool.
type CommandNetwork struct {
	runner Runner
}

func NewCommandNetwork(runner Runner) *CommandNetwork {
	if runner == nil {
		runner = ExecRunner()
	}
	return &CommandNetwork{runner: runner}
}

// ListInterfaces parses `ip -o link show`, where each line looks like
// "2: eth0: <BROADCAST,...> mtu 1500 ...".
func (c *CommandNetwork) ListInterfaces(ctx context.Context) ([]string, error) {
	out, err := c.runner.Output(ctx, "ip", "-o", "link", "show")
	if err != nil {
		return nil, err
	}

	var names []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSuffix(fields[1], ":")
		if i := strings.IndexByte(name, '@'); i >= 0 {
			name = name[:i]
		}
		names = append(names, name)
	}
	return names, sc.Err()
}

// ListAddresses parses `ip -6 -o addr show dev IFACE scope global`.
func (c *CommandNetwork) ListAddresses(ctx context.Context, iface string) ([]string, error) {
	out, err := c.runner.Output(ctx, "ip", "-6", "-o", "addr", "show", "dev", iface, "scope", "global")
	if err != nil {
		return nil, err
	}

	var addrs []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] != "inet6" {
				continue
			}
			ip, _, err := net.ParseCIDR(fields[i+1])
			if err == nil {
				addrs = append(addrs, ip.String())
			}
			break
		}
	}
	return addrs, sc.Err()
}

func (c *CommandNetwork) AssignAddress(ctx context.Context, iface, addr string) Result {
	out, err := c.runner.Output(ctx, "ip", "-6", "addr", "add", addr+"/128", "dev", iface)
	if err == nil {
		return Result{OK: true}
	}
	detail := strings.TrimSpace(string(out))
	if detail == "" {
		detail = err.Error()
	}
	if strings.Contains(strings.ToLower(detail), "file exists") {
		return Result{AlreadyPresent: true, Detail: detail}
	}
	return Result{Detail: detail}
}
