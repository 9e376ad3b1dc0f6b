package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBtcToSats(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		want    uint64
		wantErr bool
	}{
		{name: "whole coin", amount: "1", want: 100_000_000},
		{name: "small deposit", amount: "0.0002", want: 20_000},
		{name: "single sat", amount: "0.00000001", want: 1},
		{name: "max supply", amount: "21000000", want: 21_000_000 * SatsPerBtc},
		{name: "empty", amount: "", wantErr: true},
		{name: "zero", amount: "0", wantErr: true},
		{name: "negative", amount: "-0.5", wantErr: true},
		{name: "too many decimals", amount: "0.000000001", wantErr: true},
		{name: "not a number", amount: "abc", wantErr: true},
		{name: "above supply", amount: "21000001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BtcToSats(tt.amount)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSatsToBtc(t *testing.T) {
	assert.Equal(t, "0.0002", SatsToBtc(20_000))
	assert.Equal(t, "1", SatsToBtc(100_000_000))
	assert.Equal(t, "0.00000001", SatsToBtc(1))
}
