package modifiers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/KirkDiggler/rpg-toolkit/dice"

	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// DefaultNotation is the percentile roll the battle bot uses
const DefaultNotation = "1d100"

var diceNotationRegex = regexp.MustCompile(`^(\d+)d(\d+)$`)

// ParseNotation parses simple dice notation like "2d6"
func ParseNotation(notation string) (count, size int, err error) {
	matches := diceNotationRegex.FindStringSubmatch(strings.ToLower(strings.TrimSpace(notation)))
	if len(matches) != 3 {
		return 0, 0, errors.InvalidArgumentf("invalid dice notation: %s (expected format: XdY)", notation)
	}

	count, err = strconv.Atoi(matches[1])
	if err != nil {
		return 0, 0, errors.InvalidArgumentf("invalid dice count in notation: %s", notation)
	}
	size, err = strconv.Atoi(matches[2])
	if err != nil {
		return 0, 0, errors.InvalidArgumentf("invalid die size in notation: %s", notation)
	}
	if count <= 0 || size <= 0 {
		return 0, 0, errors.InvalidArgumentf("dice count and size must be positive: %s", notation)
	}
	return count, size, nil
}

// Roll rolls the notation with the roller and returns the individual dice and total
func Roll(roller dice.Roller, notation string) ([]int, int, error) {
	if notation == "" {
		notation = DefaultNotation
	}
	count, size, err := ParseNotation(notation)
	if err != nil {
		return nil, 0, err
	}

	rolls, err := roller.RollN(count, size)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to roll %s", notation)
	}
	total := 0
	for _, r := range rolls {
		total += r
	}
	return rolls, total, nil
}
