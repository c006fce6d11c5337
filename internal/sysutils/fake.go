package sysutils

import (
	"context"
	"slices"
	"sync"
)

// FakeNetwork is an in-memory Network for tests and dry runs.
type FakeNetwork struct {
	mu         sync.Mutex
	Interfaces []string
	Bound      map[string][]string

	// Unsupported makes ListInterfaces return ErrUnsupported.
	Unsupported bool
	// ListErr is returned by ListInterfaces when set.
	ListErr error
	// FailAssign makes AssignAddress fail with this detail.
	FailAssign string

	Assigned []string
}

func NewFakeNetwork(interfaces ...string) *FakeNetwork {
	return &FakeNetwork{Interfaces: interfaces, Bound: make(map[string][]string)}
}

func (f *FakeNetwork) ListInterfaces(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unsupported {
		return nil, ErrUnsupported
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return slices.Clone(f.Interfaces), nil
}

func (f *FakeNetwork) ListAddresses(_ context.Context, iface string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unsupported {
		return nil, ErrUnsupported
	}
	return slices.Clone(f.Bound[iface]), nil
}

func (f *FakeNetwork) AssignAddress(_ context.Context, iface, addr string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Assigned = append(f.Assigned, addr)
	if f.FailAssign != "" {
		return Result{Detail: f.FailAssign}
	}
	if f.Bound == nil {
		f.Bound = make(map[string][]string)
	}
	if slices.Contains(f.Bound[iface], addr) {
		return Result{AlreadyPresent: true, Detail: "file exists"}
	}
	f.Bound[iface] = append(f.Bound[iface], addr)
	return Result{OK: true}
}
