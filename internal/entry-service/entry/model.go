package entry

import "time"

type Pick string

const (
	PickMore Pick = "MORE"
	PickLess Pick = "LESS"
)

func (p Pick) Valid() bool { return p == PickMore || p == PickLess }

type LineStatus string

const (
	LineOpen    LineStatus = "OPEN"
	LineFrozen  LineStatus = "FROZEN"
	LinePulled  LineStatus = "PULLED"
	LineSettled LineStatus = "SETTLED"
)

type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusWon     Status = "WON"
	StatusLost    Status = "LOST"
	StatusVoid    Status = "VOID"    // linhas retiradas após a colocação
	StatusPartial Status = "PARTIAL" // idem; reservado
)

// Terminal indica que a entry não muda mais de status.
func (s Status) Terminal() bool { return s != StatusOpen }

type LegResult string

const (
	LegWon  LegResult = "WON"
	LegLost LegResult = "LOST"
	LegPush LegResult = "PUSH"
	LegVoid LegResult = "VOID"
)

// PropLine é fornecida pelo catálogo; ActualResult é gravado uma única vez na liquidação.
type PropLine struct {
	ID           string
	StatType     string
	LineValue    float64
	Status       LineStatus
	ActualResult *float64
	SettledAt    *time.Time
}

type Entry struct {
	ID                   string
	UserID               string
	WagerCents           int64
	LegCount             int
	Multiplier           int64
	PotentialPayoutCents int64
	Status               Status
	IdempotencyKey       string
	CreatedAt            time.Time
	SettledAt            *time.Time
	Legs                 []Leg
}

type Leg struct {
	ID         string
	EntryID    string
	PropLineID string
	Position   int
	Pick       Pick
	Result     *LegResult
	ResolvedAt *time.Time

	// preenchidos em leituras com join na prop line
	LineValue    float64
	ActualResult *float64
}

func (l Leg) Resolved() bool { return l.Result != nil }
