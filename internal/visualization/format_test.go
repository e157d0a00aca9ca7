// ABOUTME: Tests for FormatNumber abbreviation and grouping
// ABOUTME: Table-driven over numeric types, edge values and non-numeric input

package visualization

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "—"},
		{"millions", 2_500_000.0, "2.5M"},
		{"negative millions", -1_250_000, "-1.3M"},
		{"exact million", 1e6, "1.0M"},
		{"thousands", 1200.0, "1.2K"},
		{"exact thousand int", 1000, "1.0K"},
		{"negative thousands", int64(-4500), "-4.5K"},
		{"small int", 42, "42"},
		{"zero", 0.0, "0"},
		{"fraction", 3.14159, "3.142"},
		{"short fraction", 12.5, "12.5"},
		{"below thousand", 999.0, "999"},
		{"json number", json.Number("1500"), "1.5K"},
		{"string passes through", "1200", "1200"},
		{"bool passes through", true, "true"},
		{"NaN", math.NaN(), "NaN"},
		{"infinity", math.Inf(1), "∞"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatNumber(tt.in))
		})
	}
}

func TestNumeric(t *testing.T) {
	f, ok := Numeric(uint8(7))
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = Numeric("7")
	assert.False(t, ok)

	_, ok = Numeric(json.Number("abc"))
	assert.False(t, ok)
}
