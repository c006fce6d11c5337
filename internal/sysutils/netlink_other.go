//go:build !linux

package sysutils

import "context"

// UnsupportedNetwork reports ErrUnsupported for every operation.
type UnsupportedNetwork struct{}

func (UnsupportedNetwork) ListInterfaces(context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

func (UnsupportedNetwork) ListAddresses(context.Context, string) ([]string, error) {
	return nil, ErrUnsupported
}

func (UnsupportedNetwork) AssignAddress(context.Context, string, string) Result {
	return Result{Detail: ErrUnsupported.Error()}
}

// DefaultNetwork picks the Network backend for this platform.
func DefaultNetwork(string, Runner) Network {
	return UnsupportedNetwork{}
}
