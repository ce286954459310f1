package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYieldLine(t *testing.T) {
	t.Run("valid line", func(t *testing.T) {
		cy, rej := ParseYieldLine("1990\t7934", 1)

		require.Nil(t, rej)
		assert.Equal(t, 1990, cy.Year)
		assert.Equal(t, 7934, cy.Value)
		assert.Empty(t, cy.CropType)
	})

	t.Run("year boundaries accepted", func(t *testing.T) {
		_, rej := ParseYieldLine("1800\t100", 1)
		assert.Nil(t, rej)

		_, rej = ParseYieldLine("2100\t100", 1)
		assert.Nil(t, rej)
	})

	t.Run("zero yield accepted", func(t *testing.T) {
		cy, rej := ParseYieldLine("1988\t0", 1)

		require.Nil(t, rej)
		assert.Equal(t, 0, cy.Value)
	})
}

func TestParseYieldLineRejections(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason RejectReason
		detail string
	}{
		{"one field", "1990", RejectFieldCount, "expected 2 fields, got 1"},
		{"three fields", "1990\t7934\t12", RejectFieldCount, "expected 2 fields, got 3"},
		{"empty line", "", RejectFieldCount, "expected 2 fields, got 0"},
		{"non-numeric year", "199O\t7934", RejectBadValue, `invalid year value "199O"`},
		{"year below range", "1799\t7934", RejectYearRange, "year 1799 out of range 1800-2100"},
		{"year above range", "2101\t7934", RejectYearRange, "year 2101 out of range 1800-2100"},
		{"non-numeric yield", "1990\tlots", RejectBadValue, `invalid yield value "lots"`},
		{"negative yield", "1990\t-5", RejectNegativeYield, "negative yield value (-5)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rej := ParseYieldLine(tt.line, 9)

			require.NotNil(t, rej)
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.detail, rej.Detail)
			assert.Equal(t, 9, rej.Line)
		})
	}
}
