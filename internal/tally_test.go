package internal_test

import (
	"testing"

	"github.com/koopa0/system-design/14-planning-poker/internal"
	"github.com/stretchr/testify/assert"
)

// TestComputeTally 測試投票統計
func TestComputeTally(t *testing.T) {
	tests := []struct {
		name   string
		votes  []string
		expect internal.Tally
	}{
		{
			name:  "clear winner with one participant not voting",
			votes: []string{"5", "5", "3", ""},
			expect: internal.Tally{
				Entries: []internal.TallyEntry{
					{Vote: "5", Count: 2, Percentage: 66.7},
					{Vote: "3", Count: 1, Percentage: 33.3},
				},
				Total:  3,
				Winner: "5",
			},
		},
		{
			name:  "two values tied",
			votes: []string{"5", "3"},
			expect: internal.Tally{
				Entries: []internal.TallyEntry{
					{Vote: "5", Count: 1, Percentage: 50},
					{Vote: "3", Count: 1, Percentage: 50},
				},
				Total: 2,
				Tied:  true,
			},
		},
		{
			name:  "abstain is not counted",
			votes: []string{"?", "8", "?"},
			expect: internal.Tally{
				Entries: []internal.TallyEntry{
					{Vote: "8", Count: 1, Percentage: 100},
				},
				Total:  1,
				Winner: "8",
			},
		},
		{
			name:  "no votes",
			votes: []string{"", "?"},
			expect: internal.Tally{
				Entries: []internal.TallyEntry{},
				Total:   0,
			},
		},
		{
			name:  "sorted by count then first appearance",
			votes: []string{"1", "13", "13", "8", "8", "8", "1"},
			expect: internal.Tally{
				Entries: []internal.TallyEntry{
					{Vote: "8", Count: 3, Percentage: 42.9},
					{Vote: "1", Count: 2, Percentage: 28.6},
					{Vote: "13", Count: 2, Percentage: 28.6},
				},
				Total:  7,
				Winner: "8",
			},
		},
		{
			name:  "tie for first place among three values",
			votes: []string{"3", "5", "3", "5", "8"},
			expect: internal.Tally{
				Entries: []internal.TallyEntry{
					{Vote: "3", Count: 2, Percentage: 40},
					{Vote: "5", Count: 2, Percentage: 40},
					{Vote: "8", Count: 1, Percentage: 20},
				},
				Total: 5,
				Tied:  true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, internal.ComputeTally(tt.votes))
		})
	}
}
