package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAccessible(t *testing.T) {
	cases := []struct {
		vis      Visibility
		expected bool
	}{
		{Private, false},
		{Unlisted, true},
		{Public, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.vis), func(t *testing.T) {
			assert.Equal(t, tc.expected, IsAccessible(tc.vis))
		})
	}
}

func TestIsDiscoverable(t *testing.T) {
	cases := []struct {
		vis      Visibility
		expected bool
	}{
		{Private, false},
		{Unlisted, false},
		{Public, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.vis), func(t *testing.T) {
			assert.Equal(t, tc.expected, IsDiscoverable(tc.vis))
		})
	}
}

func TestMigrate(t *testing.T) {
	// The legacy model can only represent two of the three tiers; an absent
	// field decodes to false. Migrate must never produce Unlisted.
	assert.Equal(t, Public, Migrate(true))
	assert.Equal(t, Private, Migrate(false))
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name     string
		vis      Visibility
		isPublic bool
		expected Visibility
	}{
		{
			name:     "explicit field wins over legacy boolean",
			vis:      Unlisted,
			isPublic: true,
			expected: Unlisted,
		},
		{
			name:     "explicit private wins over legacy public",
			vis:      Private,
			isPublic: true,
			expected: Private,
		},
		{
			name:     "absent field falls back to legacy public",
			vis:      "",
			isPublic: true,
			expected: Public,
		},
		{
			name:     "absent field and absent legacy boolean give private",
			vis:      "",
			isPublic: false,
			expected: Private,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Resolve(tc.vis, tc.isPublic))
		})
	}
}
