package content

import (
	"encoding/json"
	"fmt"
	"os"

	"cyber-duel-server/models"

	"github.com/gosimple/slug"
)

// Catalog is the fixed set of themes a duel progresses through. Its size is
// the game-completion constant: a game finishes once every theme is played.
type Catalog struct {
	themes []models.Theme
	byID   map[string]models.Theme
}

// defaultThemes ship with the server so it runs without content config.
var defaultThemes = []models.Theme{
	{Name: "Phishing Frenzy", Description: "Credential-bait campaigns against the helpdesk", TimeBudgetSec: 30},
	{Name: "DDoS Storm", Description: "Volumetric floods against the public edge", TimeBudgetSec: 30},
	{Name: "Malware Outbreak", Description: "Payload delivery and lateral movement", TimeBudgetSec: 45},
	{Name: "SQL Injection Alley", Description: "Input abuse against the order API", TimeBudgetSec: 45},
	{Name: "Insider Threat", Description: "Abuse of legitimate access", TimeBudgetSec: 60},
}

// Load builds the catalog from THEME_CATALOG_FILE when set, otherwise from
// the built-in default set. Theme ids are slugs derived from display names,
// so content files only need to supply names and budgets.
func Load() (*Catalog, error) {
	themes := defaultThemes
	if path := os.Getenv("THEME_CATALOG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read theme catalog %s: %w", path, err)
		}
		var loaded []models.Theme
		if err := json.Unmarshal(raw, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse theme catalog %s: %w", path, err)
		}
		if len(loaded) == 0 {
			return nil, fmt.Errorf("theme catalog %s contains no themes", path)
		}
		themes = loaded
	}
	return New(themes)
}

// New builds a catalog from the given themes, slugifying missing ids.
func New(themes []models.Theme) (*Catalog, error) {
	if len(themes) == 0 {
		return nil, fmt.Errorf("theme catalog must contain at least one theme")
	}
	c := &Catalog{byID: make(map[string]models.Theme, len(themes))}
	for _, t := range themes {
		if t.ID == "" {
			t.ID = slug.Make(t.Name)
		}
		if t.TimeBudgetSec <= 0 {
			t.TimeBudgetSec = 30
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate theme id %q in catalog", t.ID)
		}
		c.byID[t.ID] = t
		c.themes = append(c.themes, t)
	}
	return c, nil
}

// Size is the total theme count used for game-completion detection.
func (c *Catalog) Size() int {
	return len(c.themes)
}

// ByID looks up a theme.
func (c *Catalog) ByID(id string) (models.Theme, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// First returns the opening theme of the catalog.
func (c *Catalog) First() models.Theme {
	return c.themes[0]
}

// Next returns the first catalog theme not present in played, in catalog
// order. ok is false once every theme has been played.
func (c *Catalog) Next(played []string) (models.Theme, bool) {
	seen := make(map[string]bool, len(played))
	for _, id := range played {
		seen[id] = true
	}
	for _, t := range c.themes {
		if !seen[t.ID] {
			return t, true
		}
	}
	return models.Theme{}, false
}

// Themes returns the catalog contents in order.
func (c *Catalog) Themes() []models.Theme {
	return append([]models.Theme{}, c.themes...)
}
