package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name     string
		server   int
		prior    int
		expected int
	}{
		{name: "server value is trusted", server: 42, prior: 10, expected: 42},
		{name: "server value is clamped", server: 150, prior: 10, expected: 100},
		{name: "zero creeps by one", server: 0, prior: 5, expected: 6},
		{name: "zero from start", server: 0, prior: 0, expected: 1},
		{name: "creep stops below completion", server: 0, prior: 99, expected: 99},
		{name: "creep never claims completion", server: 0, prior: 98, expected: 99},
		{name: "negative server treated as zero", server: -3, prior: 7, expected: 8},
		{name: "server regression keeps prior", server: 20, prior: 35, expected: 35},
		{name: "server reports completion", server: 100, prior: 99, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Estimate(tt.server, tt.prior))
		})
	}
}

func TestEstimate_CreepingSequence(t *testing.T) {
	shown := 0
	var got []int
	for i := 0; i < 3; i++ {
		shown = Estimate(0, shown)
		got = append(got, shown)
	}

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestEstimate_Monotonic(t *testing.T) {
	sequences := [][]int{
		{0, 0, 0, 30, 0, 10, 55, 0, 0, 80},
		{90, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{5, 3, 1, 0, 60, 0},
	}

	for _, seq := range sequences {
		shown := 0
		for _, server := range seq {
			next := Estimate(server, shown)
			assert.GreaterOrEqual(t, next, shown, "sequence %v", seq)
			if server < Complete {
				assert.LessOrEqual(t, next, Ceiling, "sequence %v", seq)
			}
			shown = next
		}
	}

	shown := 0
	for i := 0; i < 500; i++ {
		shown = Estimate(0, shown)
	}
	assert.Equal(t, Ceiling, shown)
}
