package settlement

import "github.com/radieske/props-entry-platform/internal/entry-service/entry"

// Resolve compara o valor observado com a linha. Igualdade é PUSH.
func Resolve(pick entry.Pick, lineValue, actual float64) entry.LegResult {
	switch {
	case actual == lineValue:
		return entry.LegPush
	case pick == entry.PickMore && actual > lineValue,
		pick == entry.PickLess && actual < lineValue:
		return entry.LegWon
	default:
		return entry.LegLost
	}
}

// Aggregate decide o status da entry a partir das legs.
// Enquanto houver leg sem resultado a entry continua OPEN.
// PUSH (e VOID) não quebram a entry: só LOST faz perder.
func Aggregate(legs []entry.Leg) entry.Status {
	lost := false
	for _, l := range legs {
		if l.Result == nil {
			return entry.StatusOpen
		}
		if *l.Result == entry.LegLost {
			lost = true
		}
	}
	if lost {
		return entry.StatusLost
	}
	return entry.StatusWon
}
