package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeChatAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "local number with leading zero",
			input:    "081234567890",
			expected: "6281234567890@c.us",
		},
		{
			name:     "formatted international number",
			input:    "+62 812-3456-7890",
			expected: "6281234567890@c.us",
		},
		{
			name:     "already normalized",
			input:    "6281234567890@c.us",
			expected: "6281234567890@c.us",
		},
		{
			name:     "no digits at all",
			input:    "not-a-number",
			expected: "@c.us",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "@c.us",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeChatAddress(tt.input, "62"))
		})
	}
}

func TestNormalizeChatAddressIdempotent(t *testing.T) {
	inputs := []string{"081234567890", "+62 812-3456-7890", "12345", "0"}

	for _, input := range inputs {
		once := NormalizeChatAddress(input, "62")
		twice := NormalizeChatAddress(once, "62")
		assert.Equal(t, once, twice, "normalize should be idempotent for %q", input)
	}
}
