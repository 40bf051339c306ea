package model

// Disposition is the settlement status of a category assignment.
type Disposition string

// Dispositions produced by classification.
const (
	DispositionOwed             Disposition = "OWED"
	DispositionPaid             Disposition = "PAID"
	DispositionNotOwed          Disposition = "NOT_OWED"
	DispositionFlagNameNotFound Disposition = "FLAG_NAME_NOT_FOUND"
	DispositionFlagAmbiguous    Disposition = "FLAG_AMBIGUOUS_AMOUNT"
	DispositionFlagPOS          Disposition = "FLAG_POS"
	DispositionError            Disposition = "ERROR"
)

// IsFlag reports whether d marks a row the driver could not decide.
func (d Disposition) IsFlag() bool {
	switch d {
	case DispositionFlagNameNotFound, DispositionFlagAmbiguous, DispositionFlagPOS:
		return true
	default:
		return false
	}
}

// IsOpen reports whether d still needs the operator: flags and failed rows.
// Open records are the ones escalation replies resolve to PAID.
func (d Disposition) IsOpen() bool {
	return d.IsFlag() || d == DispositionError
}

// IsSettled reports whether d is a closed decision carrying a category and amount.
func (d Disposition) IsSettled() bool {
	switch d {
	case DispositionOwed, DispositionPaid, DispositionNotOwed:
		return true
	default:
		return false
	}
}

// Valid reports whether d is a known disposition.
func (d Disposition) Valid() bool {
	return d.IsFlag() || d.IsSettled() || d == DispositionError
}
