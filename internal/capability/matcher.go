package capability

import "fmt"

// Verdict is the outcome kind of an evaluation.
type Verdict uint8

const (
	Run Verdict = iota
	Skip
)

func (v Verdict) String() string {
	if v == Skip {
		return "skip"
	}
	return "run"
}

// Decision is either Run or Skip with the reason and the missing capability.
type Decision struct {
	Verdict Verdict
	Reason  string
	Missing Key
}

func (d Decision) ShouldRun() bool {
	return d.Verdict == Run
}

// Evaluate checks requirements against reg in declaration order. The first
// requirement reg does not declare decides the skip reason.
func Evaluate(requirements RequirementSet, reg *Registry) Decision {
	for _, c := range requirements.items {
		k := KeyOf(c)
		if reg == nil || !reg.Has(k) {
			backend := "<none>"
			if reg != nil {
				backend = reg.Backend()
			}
			return Decision{
				Verdict: Skip,
				Reason:  fmt.Sprintf("backend %s does not support %s", backend, k),
				Missing: k,
			}
		}
	}
	return Decision{Verdict: Run}
}
