package models

// Theme is one content unit of the duel: a scenario the attacker probes and
// the defender must answer within the theme's time budget. Themes come from
// external content configuration; the engine treats them as opaque metadata.
type Theme struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	TimeBudgetSec int    `json:"time_budget_sec"`
}
