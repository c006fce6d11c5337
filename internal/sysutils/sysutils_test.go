package sysutils

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerr "github.com/qza666/v6relay/internal/errors"
)

type runCall struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []runCall
	out   map[string]string
	err   map[string]error
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	cp := make([]string, len(args))
	copy(cp, args)
	f.calls = append(f.calls, runCall{name: name, args: cp})
	key := name
	if len(args) > 0 {
		key = name + " " + args[0]
	}
	return []byte(f.out[key]), f.err[key]
}

func TestHostCommands(t *testing.T) {
	fr := &fakeRunner{}
	h := NewHost(fr)
	ctx := context.Background()

	require.NoError(t, h.SetV6Forwarding(ctx))
	require.NoError(t, h.SetIpNonLocalBind(ctx))
	require.NoError(t, h.AddV6Route(ctx, "2001:db8::/48", "ens3"))

	if len(fr.calls) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(fr.calls))
	}
	want := []string{"-6", "route", "replace", "local", "2001:db8::/48", "dev", "ens3"}
	if !reflect.DeepEqual(fr.calls[2].args, want) {
		t.Fatalf("route command mismatch: got %v want %v", fr.calls[2].args, want)
	}
}

func TestCommandNetwork_ListInterfaces(t *testing.T) {
	fr := &fakeRunner{out: map[string]string{
		"ip -o": "1: lo: <LOOPBACK,UP> mtu 65536 qdisc noqueue\n" +
			"2: ens3: <BROADCAST,MULTICAST,UP> mtu 1500 qdisc fq_codel\n" +
			"3: veth0@if4: <BROADCAST> mtu 1500\n",
	}}

	names, err := NewCommandNetwork(fr).ListInterfaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lo", "ens3", "veth0"}, names)
}

func TestCommandNetwork_ListAddresses(t *testing.T) {
	fr := &fakeRunner{out: map[string]string{
		"ip -6": "2: ens3    inet6 2001:db8:1:6000::1/128 scope global \\       valid_lft forever\n" +
			"2: ens3    inet6 2001:db8:1::5/64 scope global dynamic\n",
	}}

	addrs, err := NewCommandNetwork(fr).ListAddresses(context.Background(), "ens3")
	require.NoError(t, err)
	assert.Equal(t, []string{"2001:db8:1:6000::1", "2001:db8:1::5"}, addrs)
	assert.Equal(t, []string{"-6", "-o", "addr", "show", "dev", "ens3", "scope", "global"}, fr.calls[0].args)
}

func TestCommandNetwork_AssignAddress(t *testing.T) {
	ok := &fakeRunner{}
	res := NewCommandNetwork(ok).AssignAddress(context.Background(), "ens3", "2001:db8::1")
	assert.True(t, res.OK)
	assert.Equal(t, []string{"-6", "addr", "add", "2001:db8::1/128", "dev", "ens3"}, ok.calls[0].args)

	exists := &fakeRunner{
		out: map[string]string{"ip -6": "RTNETLINK answers: File exists"},
		err: map[string]error{"ip -6": errors.New("exit status 2")},
	}
	res = NewCommandNetwork(exists).AssignAddress(context.Background(), "ens3", "2001:db8::1")
	assert.True(t, res.AlreadyPresent)
	assert.False(t, res.OK)

	denied := &fakeRunner{
		out: map[string]string{"ip -6": "RTNETLINK answers: Operation not permitted"},
		err: map[string]error{"ip -6": errors.New("exit status 2")},
	}
	res = NewCommandNetwork(denied).AssignAddress(context.Background(), "ens3", "2001:db8::1")
	assert.False(t, res.OK)
	assert.False(t, res.AlreadyPresent)
	assert.Contains(t, res.Detail, "Operation not permitted")
}

func TestManager_Verify(t *testing.T) {
	ctx := context.Background()

	found := NewManager(NewFakeNetwork("lo", "ens3"), ManagerConfig{Interface: "ens3"})
	assert.NoError(t, found.Verify(ctx))

	missing := NewManager(NewFakeNetwork("lo"), ManagerConfig{Interface: "ens3"})
	err := missing.Verify(ctx)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, relayerr.Status(err))
	assert.Equal(t, relayerr.KindConfiguration, relayerr.KindOf(err))

	fn := NewFakeNetwork()
	fn.Unsupported = true
	unsupported := NewManager(fn, ManagerConfig{Interface: "ens3"})
	assert.ErrorIs(t, unsupported.Verify(ctx), ErrUnsupported)
	assert.False(t, unsupported.Supported(ctx))
}

func TestManager_Assign(t *testing.T) {
	ctx := context.Background()

	fn := NewFakeNetwork("ens3")
	m := NewManager(fn, ManagerConfig{Interface: "ens3", Assign: true, Timeout: time.Second})
	require.NoError(t, m.Assign(ctx, "2001:db8::1"))
	require.NoError(t, m.Assign(ctx, "2001:db8::1"), "already present counts as success")

	addrs, err := m.Addresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2001:db8::1"}, addrs)

	failing := NewFakeNetwork("ens3")
	failing.FailAssign = "operation not permitted"
	err = NewManager(failing, ManagerConfig{Interface: "ens3", Assign: true}).Assign(ctx, "2001:db8::2")
	require.Error(t, err)
	assert.Equal(t, relayerr.KindConfiguration, relayerr.KindOf(err))
	assert.Contains(t, err.Error(), "operation not permitted")

	disabled := NewFakeNetwork("ens3")
	disabled.FailAssign = "would fail"
	require.NoError(t, NewManager(disabled, ManagerConfig{Interface: "ens3"}).Assign(ctx, "2001:db8::3"))
	assert.Empty(t, disabled.Assigned, "assignment disabled must skip the system call")
}
