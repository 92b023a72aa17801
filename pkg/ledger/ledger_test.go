package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAddress returns a valid base58 address derived from seed
func testAddress(seed byte) string {
	return base58.Encode(bytes.Repeat([]byte{seed}, pubkeyLen))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", errors.New("boom"), KindUnknown},
		{"not found", newError(OpJobDetail, KindNotFound, "job-1", nil), KindNotFound},
		{"wrapped transient", fmt.Errorf("batch: %w", newError(OpAccountInfo, KindTransient, "a", errors.New("timeout"))), KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"wrapped cancel", fmt.Errorf("call: %w", context.Canceled), KindTransient},
		{"unavailable", Unavailable(errors.New("dial tcp")), KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			if tt.err != nil {
				assert.True(t, IsKind(tt.err, tt.want))
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := errorf(OpJobDetail, KindMalformed, "job-7", "HTTP %d", 400)
	assert.Equal(t, "ledger job_detail job-7: malformed: HTTP 400", err.Error())

	cause := errors.New("connection refused")
	wrapped := Unavailable(cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "ledger list_jobs: unavailable: connection refused", wrapped.Error())
}

func TestNormalizeAddress(t *testing.T) {
	valid := testAddress(7)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "valid", in: valid, want: valid},
		{name: "surrounding whitespace", in: "  " + valid + "\n", want: valid},
		{name: "system program", in: "11111111111111111111111111111111", want: "11111111111111111111111111111111"},
		{name: "empty", in: "", wantErr: true},
		{name: "too short", in: "abc", wantErr: true},
		{name: "invalid alphabet", in: "0OIl" + valid[4:], wantErr: true},
		{name: "wrong decoded length", in: base58.Encode(bytes.Repeat([]byte{9}, 20)) + "1111111111", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSameAddress(t *testing.T) {
	a := testAddress(1)
	b := testAddress(2)

	assert.True(t, SameAddress(a, " "+a))
	assert.False(t, SameAddress(a, b))
	assert.False(t, SameAddress(a, ""))
	assert.False(t, SameAddress("not-an-address", "not-an-address"))
}
