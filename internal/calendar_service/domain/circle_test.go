package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCircle(t *testing.T) {
	tests := map[string]string{
		"Jammu & Kashmir":   "jammu-kashmir",
		"jammu":             "jammu-kashmir",
		"J&K":               "jammu-kashmir",
		"jammu-kashmir":     "jammu-kashmir",
		"  Tamil   Nadu ":   "tamil-nadu",
		"tamil-nadu":        "tamil-nadu",
		"Delhi NCR":         "delhi",
		"UP East":           "up-east",
		"Some New   Circle": "some-new-circle",
		"":                  "",
	}
	for input, want := range tests {
		assert.Equal(t, want, NormalizeCircle(input), "input %q", input)
	}
}

func TestIsJammuKashmir(t *testing.T) {
	for _, c := range []string{"Jammu & Kashmir", "jammu", "JK", "jammu and kashmir", "jammu_kashmir"} {
		assert.True(t, IsJammuKashmir(c), c)
	}
	assert.False(t, IsJammuKashmir("kerala"))
}
