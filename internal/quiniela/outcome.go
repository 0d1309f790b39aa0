package quiniela

type Outcome string

const (
	OutcomeHome Outcome = "home"
	OutcomeAway Outcome = "away"
	OutcomeDraw Outcome = "draw"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeHome, OutcomeAway, OutcomeDraw:
		return true
	}
	return false
}
