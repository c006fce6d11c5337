package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unauthorized", Unauthorized("bad token"), http.StatusUnauthorized},
		{"missing url", MissingURL(), http.StatusBadRequest},
		{"invalid url", InvalidURL("::"), http.StatusBadRequest},
		{"configuration", Configuration("interface eth9 not found", nil), http.StatusInternalServerError},
		{"upstream", Upstream("example.com", errors.New("connection refused")), http.StatusBadGateway},
		{"timeout", Timeout("example.com", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"wrapped", fmt.Errorf("relay: %w", Timeout("a", nil)), http.StatusGatewayTimeout},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestRelayError_Unwrap(t *testing.T) {
	err := Timeout("example.com", context.DeadlineExceeded)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "request timed out connecting to example.com: context deadline exceeded", err.Error())
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "upstream", KindUpstream.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
