package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name     string
		base     map[string]string
		explicit map[string]string
		expected map[string]string
	}{
		{
			name:     "explicit wins on collision",
			base:     map[string]string{"PORT": "8000", "DEBUG": "1"},
			explicit: map[string]string{"PORT": "8001"},
			expected: map[string]string{"PORT": "8001", "DEBUG": "1"},
		},
		{
			name:     "nil base",
			base:     nil,
			explicit: map[string]string{"APP_ENV": "prod"},
			expected: map[string]string{"APP_ENV": "prod"},
		},
		{
			name:     "nil explicit keeps base",
			base:     map[string]string{"APP_ENV": "dev"},
			explicit: nil,
			expected: map[string]string{"APP_ENV": "dev"},
		},
		{
			name:     "both nil",
			base:     nil,
			explicit: nil,
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mergeEnv(tt.base, tt.explicit))
		})
	}
}

func TestShortDigest(t *testing.T) {
	assert.Equal(t, "3c4f9a21b6de",
		shortDigest("sha256:3c4f9a21b6de0f11aa22bb33cc44dd55ee66ff778899aabbccddeeff00112233"))
	assert.Equal(t, "3c4f9a21b6de",
		shortDigest("3c4f9a21b6de0f11aa22bb33cc44dd55ee66ff778899aabbccddeeff00112233"))
	assert.Equal(t, "abc", shortDigest("abc"))
	assert.Equal(t, "", shortDigest(""))
}
