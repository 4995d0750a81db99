package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeByID(t *testing.T) {
	cases := []struct {
		name      string
		primary   []Collection
		secondary []Collection
		expected  []string
	}{
		{
			name:      "disjoint sets give the union, primary first",
			primary:   []Collection{{ID: "a"}, {ID: "b"}},
			secondary: []Collection{{ID: "c"}},
			expected:  []string{"a", "b", "c"},
		},
		{
			name:      "primary wins ties",
			primary:   []Collection{{ID: "a", Name: "current"}},
			secondary: []Collection{{ID: "a", Name: "legacy"}, {ID: "b"}},
			expected:  []string{"a", "b"},
		},
		{
			name:      "both sides empty",
			primary:   nil,
			secondary: nil,
			expected:  []string{},
		},
		{
			name:      "duplicates within one side collapse",
			primary:   []Collection{{ID: "a"}, {ID: "a"}},
			secondary: nil,
			expected:  []string{"a"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			merged := MergeByID(tc.primary, tc.secondary)
			ids := make([]string, 0, len(merged))
			for _, c := range merged {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tc.expected, ids)
		})
	}
}

func TestMergeByIDPrecedenceKeepsPrimaryDoc(t *testing.T) {
	primary := []Collection{{ID: "a", Name: "current"}}
	secondary := []Collection{{ID: "a", Name: "legacy"}}
	merged := MergeByID(primary, secondary)
	assert.Len(t, merged, 1)
	assert.Equal(t, "current", merged[0].Name)
}
