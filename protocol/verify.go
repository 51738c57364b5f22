package protocol

import "github.com/mitanshubhoot/PP-TIO/ioc"

// ExactOverlap computes the true intersection/union in plaintext. For
// accuracy reporting and tests only — it defeats the purpose of the
// protocol in production.
func ExactOverlap(setA, setB []ioc.Indicator) (intersection, union int, jaccard float64) {
	a := make(map[ioc.Indicator]struct{}, len(setA))
	for _, ind := range ioc.Dedupe(setA) {
		a[ind] = struct{}{}
	}
	b := ioc.Dedupe(setB)
	union = len(a)
	for _, ind := range b {
		if _, ok := a[ind]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union > 0 {
		jaccard = float64(intersection) / float64(union)
	}
	return intersection, union, jaccard
}
