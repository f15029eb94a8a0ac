package multiplier

import (
	"errors"
	"fmt"
)

const (
	MinLegs = 2
	MaxLegs = 6
)

var ErrUnsupportedLegCount = errors.New("unsupported leg count")

// table: quantidade de legs -> multiplicador do wager
var table = map[int]int64{
	2: 3,
	3: 5,
	4: 10,
	5: 20,
	6: 35,
}

// For retorna o multiplicador para a quantidade de legs
func For(legCount int) (int64, error) {
	m, ok := table[legCount]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedLegCount, legCount)
	}
	return m, nil
}

// Payout calcula wager * multiplicador
func Payout(wagerCents int64, legCount int) (int64, error) {
	m, err := For(legCount)
	if err != nil {
		return 0, err
	}
	return wagerCents * m, nil
}
