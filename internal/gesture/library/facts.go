package library

// Facts describes a character's current situation as named values.
type Facts map[string]string

// FactOracle picks which alternative of a definition should play.
type FactOracle interface {
	SelectAlternative(def *Def, facts Facts, current uint8) uint8
}

// CriteriaOracle matches an alternative when every entry of its When map
// equals the fact of the same name. The match with the most criteria wins,
// earlier alternatives winning ties. A sticky current alternative is kept
// while it still matches.
type CriteriaOracle struct{}

// SelectAlternative implements FactOracle.
func (CriteriaOracle) SelectAlternative(def *Def, facts Facts, current uint8) uint8 {
	if def == nil || len(def.Alternatives) == 0 {
		return AltNone
	}
	if int(current) < len(def.Alternatives) {
		alt := &def.Alternatives[current]
		if alt.Sticky && matches(alt.When, facts) {
			return current
		}
	}

	best, bestScore := AltNone, 0
	for i := range def.Alternatives {
		alt := &def.Alternatives[i]
		if !matches(alt.When, facts) {
			continue
		}
		if len(alt.When) > bestScore {
			best, bestScore = uint8(i), len(alt.When)
		}
	}
	return best
}

func matches(when map[string]string, facts Facts) bool {
	for k, want := range when {
		if got, ok := facts[k]; !ok || got != want {
			return false
		}
	}
	return true
}
