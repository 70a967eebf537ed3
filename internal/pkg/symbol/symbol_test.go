package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "AAPL", Normalize("  aapl "))
	assert.Equal(t, "BRK.B", Normalize("brk.b"))
	assert.Equal(t, "", Normalize("   "))
}

func TestNormalizeAll(t *testing.T) {
	got := NormalizeAll([]string{"aapl", "MSFT", " aapl ", "", "msft", "NVDA"})
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, got, "dedup keeps first-seen order")
}

func TestValid(t *testing.T) {
	valid := []string{"A", "AAPL", "GOOGL", "brk.b", "BF.A"}
	for _, s := range valid {
		assert.True(t, Valid(s), s)
	}
	invalid := []string{"", "TOOLONG", "AAPL1", "BRK.", "BRK.ABC", "NOT A TICKER", "AA-PL"}
	for _, s := range invalid {
		assert.False(t, Valid(s), s)
	}
}
