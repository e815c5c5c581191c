package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/randomizedcoder/go-seed-swarm/internal/process"
)

var (
	// ErrUnknownCategory is returned for a fun-search category that does
	// not exist.
	ErrUnknownCategory = errors.New("unknown fun search category")

	// ErrNoTasks is returned when a word list produces no search steps.
	ErrNoTasks = errors.New("no search tasks")
)

// categories holds the built-in fun-search word lists.
var categories = map[string][]string{
	"LOL": {
		"LMAO", "ROFL", "HAHA", "JOKE", "MEME", "EPIC", "FAIL", "DERP",
		"NOOB", "YOLO", "SWAG", "REKT", "TROLL", "PLEB", "KEKS", "LULZ",
	},
	"GROSS": {
		"FART", "BUTT", "BURP", "SNOT", "POOP", "SLIME", "YUCK", "EWWW", "SICK",
		"VOMIT", "GUNK", "CRUD", "MOLD", "GRIME", "BILE", "DROOL", "SCUM",
	},
	"COOL": {
		"PILUV", "FIRE", "DOPE", "SICK", "EPIC", "RAGE", "WILD", "YEAH", "BOSS",
		"HERO", "STAR", "GOLD", "RICH", "DAMN", "MEGA", "HUGE", "ROCK", "KING",
	},
}

// Categories returns the built-in category names, sorted.
func Categories() []string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CategoryWords returns a copy of the word list for a category. Matching is
// case-insensitive.
func CategoryWords(category string) ([]string, error) {
	words, ok := categories[strings.ToUpper(strings.TrimSpace(category))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return slices.Clone(words), nil
}

// NormalizeWords upper-cases and trims custom words, dropping blanks. Words
// of MaxSeedLength characters or more leave no room for filler and are
// returned in skipped instead. A character outside the seed alphabet is an
// error, as is a list with nothing left to search.
func NormalizeWords(words []string) (out, skipped []string, err error) {
	out = make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToUpper(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		for _, c := range w {
			if !strings.ContainsRune(process.SeedAlphabet, c) {
				return nil, nil, fmt.Errorf("word %q: invalid character %q", w, c)
			}
		}
		if len(w) >= process.MaxSeedLength {
			skipped = append(skipped, w)
			continue
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, skipped, ErrNoTasks
	}
	return out, skipped, nil
}
