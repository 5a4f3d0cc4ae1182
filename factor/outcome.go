package factor

import "factorlab/market"

// Outcome is the result of the factorability gate plus extraction: either
// *Extracted or *NotFactorable. Attribution accepts only *Extracted.
type Outcome interface {
	outcome()
}

// Extracted carries the rotated loadings and the per-date factor scores.
type Extracted struct {
	Loadings *Loadings    `json:"loadings"`
	Scores   *market.Table `json:"scores"`
}

// NotFactorable records why extraction was skipped.
type NotFactorable struct {
	Reason     string         `json:"reason"`
	Assessment *Factorability `json:"assessment"`
}

func (*Extracted) outcome()     {}
func (*NotFactorable) outcome() {}

// Gate runs extraction when the assessment passed and returns the tagged outcome.
func Gate(z *market.Table, assessment *Factorability, opts Options) (Outcome, error) {
	if !assessment.Passed {
		return &NotFactorable{Reason: assessment.Reason, Assessment: assessment}, nil
	}
	return Extract(z, opts)
}
