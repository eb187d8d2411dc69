package resilience

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient 429", NewTransientError(eris.New("slow down"), 429), true},
		{"transient 500", NewTransientError(eris.New("oops"), 500), false},
		{"message rate limit", eris.New("anthropic: rate limit exceeded"), true},
		{"message rate_limit_error", eris.New(`{"type":"rate_limit_error"}`), true},
		{"message too many requests", eris.New("Too Many Requests"), true},
		{"message 429", eris.New("unexpected status 429"), true},
		{"unrelated", eris.New("invalid api key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimit(tt.err))
		})
	}
}

func TestIsRateLimit_Wrapped(t *testing.T) {
	inner := NewTransientError(eris.New("overloaded"), 429)
	wrapped := eris.Wrap(inner, "vision: create message")
	assert.True(t, IsRateLimit(wrapped))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(eris.New("anything"), 0)))
	assert.True(t, IsTransient(eris.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(eris.New("record not found")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
