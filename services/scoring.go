package services

import "math"

// Point awards for rounds won by the attacker. A timeout is penalized more
// heavily than an active wrong defense.
const (
	BreachAward  = 150
	TimeoutAward = 200
)

// Defense scoring constants: flat base plus a speed bonus scaled by how
// much of the theme's time budget was left, plus a streak bonus.
const (
	defenseBase     = 100
	speedBonusMax   = 200
	streakBonusStep = 50
)

// Score computes the points a defender earns for a round. An incorrect
// defense is always worth 0. streak is the consecutive-defense count as it
// stood before this round resolved.
func Score(timeRemaining, themeTimeBudget float64, correct bool, streak int) int {
	if !correct {
		return 0
	}
	speed := 0
	if themeTimeBudget > 0 {
		if timeRemaining < 0 {
			timeRemaining = 0
		}
		if timeRemaining > themeTimeBudget {
			timeRemaining = themeTimeBudget
		}
		speed = int(math.Round(speedBonusMax * timeRemaining / themeTimeBudget))
	}
	return defenseBase + speed + streakBonusStep*streak
}
