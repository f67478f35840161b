package scrape

// Base priorities per kind; lower wins.
var kindPriority = map[Kind]int{
	KindAnnualReport:       1,
	KindFinancialStatement: 2,
	KindSOFI:               3,
	KindOther:              4,
}

// DraftPenalty demotes draft versions below every finalized kind. A draft is
// only ever selected when it is the sole candidate for its year.
const DraftPenalty = 10

// PriorityFor computes the selection priority for a kind/draft combination.
func PriorityFor(kind Kind, draft bool) int {
	p, ok := kindPriority[kind]
	if !ok {
		p = kindPriority[KindOther]
	}
	if draft {
		p += DraftPenalty
	}
	return p
}

// SelectBestPerYear reduces a candidate set to at most one document per
// fiscal year. Candidates with no year are dropped, as are years at or past
// currentYear: an annual report for the current year cannot exist yet.
// Within a year the strictly lowest priority wins; ties keep the candidate
// seen first.
func SelectBestPerYear(candidates []Candidate, currentYear int) map[int]Candidate {
	byYear := make(map[int]Candidate)

	for _, c := range candidates {
		if c.Year == 0 || c.Year >= currentYear {
			continue
		}
		c.Priority = PriorityFor(c.Kind, c.Draft)

		existing, ok := byYear[c.Year]
		if !ok || c.Priority < existing.Priority {
			byYear[c.Year] = c
		}
	}

	return byYear
}
