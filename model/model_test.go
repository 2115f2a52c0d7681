package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("evt")
	assert.True(t, strings.HasPrefix(id, "evt_"))
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("evt"))
}

func TestHashPayloadStable(t *testing.T) {
	body := []byte(`{"record_id":"r1"}`)
	assert.Equal(t, HashPayload(body), HashPayload(body))
	assert.NotEqual(t, HashPayload(body), HashPayload([]byte(`{"record_id":"r2"}`)))
	assert.Len(t, HashPayload(body), 64)
}

func TestNextRetryBackoff(t *testing.T) {
	base := time.Second
	max := 60 * time.Second

	for attempts, want := range map[int]time.Duration{
		0: time.Second,
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
	} {
		got := NextRetryBackoff(attempts, base, max)
		assert.GreaterOrEqual(t, got, want, "attempt %d", attempts)
		assert.LessOrEqual(t, got, want+want*3/10, "attempt %d jitter ceiling", attempts)
	}

	// Doubling stops at the cap.
	got := NextRetryBackoff(10, base, max)
	assert.GreaterOrEqual(t, got, max)
	assert.LessOrEqual(t, got, max+max*3/10)
}

func TestEventIsTerminal(t *testing.T) {
	for status, terminal := range map[string]bool{
		EventStatusQueued:     false,
		EventStatusProcessing: false,
		EventStatusFailed:     false,
		EventStatusSuccess:    true,
		EventStatusDeadLetter: true,
	} {
		e := Event{Status: status}
		assert.Equal(t, terminal, e.IsTerminal(), status)
	}
}
