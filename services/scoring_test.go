package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreCorrectDefense(t *testing.T) {
	// 100 base + round(200 * 10/30) speed bonus, no streak.
	assert.Equal(t, 167, Score(10, 30, true, 0))

	// Full time remaining maxes the speed bonus.
	assert.Equal(t, 300, Score(30, 30, true, 0))

	// No time remaining leaves only the base.
	assert.Equal(t, 100, Score(0, 30, true, 0))
}

func TestScoreIncorrectDefenseIsZero(t *testing.T) {
	assert.Equal(t, 0, Score(10, 30, false, 0))
	assert.Equal(t, 0, Score(30, 30, false, 5))
	assert.Equal(t, 0, Score(0, 0, false, 100))
}

func TestScoreStreakBonus(t *testing.T) {
	base := Score(10, 30, true, 0)
	assert.Equal(t, base+50, Score(10, 30, true, 1))
	assert.Equal(t, base+150, Score(10, 30, true, 3))
}

func TestScoreClampsTimeRemaining(t *testing.T) {
	// Negative remaining time scores as zero remaining.
	assert.Equal(t, 100, Score(-5, 30, true, 0))
	// Remaining time above the budget caps at the max speed bonus.
	assert.Equal(t, 300, Score(90, 30, true, 0))
	// Degenerate budget drops the speed bonus entirely.
	assert.Equal(t, 100, Score(10, 0, true, 0))
}
