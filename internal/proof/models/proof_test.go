package models

import (
	"errors"
	"testing"
	"time"

	e "github.com/gartstein/proofly/internal/proof/errors"
	"github.com/stretchr/testify/assert"
)

func TestProof_State(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		proof    Proof
		expected ProofState
	}{
		{
			name:     "fresh proof is issued",
			proof:    Proof{ExpiresAt: now.Add(time.Hour)},
			expected: ProofIssued,
		},
		{
			name:     "used proof is consumed",
			proof:    Proof{ExpiresAt: now.Add(time.Hour), IsUsed: true},
			expected: ProofConsumed,
		},
		{
			name:     "expiry wins over consumption",
			proof:    Proof{ExpiresAt: now.Add(-time.Nanosecond), IsUsed: true},
			expected: ProofExpired,
		},
		{
			name:     "expiry instant itself is not expired",
			proof:    Proof{ExpiresAt: now},
			expected: ProofIssued,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.proof.State(now))
		})
	}
}

func TestVerifyResult_Err(t *testing.T) {
	assert.NoError(t, Valid(1, 2).Err())
	assert.True(t, errors.Is(Invalid(ReasonNotFound).Err(), e.ErrNotFound))
	assert.True(t, errors.Is(Invalid(ReasonExpired).Err(), e.ErrExpired))
	assert.True(t, errors.Is(Invalid(ReasonAlreadyUsed).Err(), e.ErrAlreadyUsed))

	assert.Equal(t, "valid", Valid(1, 2).Outcome())
	assert.Equal(t, "EXPIRED", Invalid(ReasonExpired).Outcome())
}
