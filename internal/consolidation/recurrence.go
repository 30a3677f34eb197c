package consolidation

// Annotation summarizes how often the problem behind a set of matches has
// been reported, counting the occurrence being evaluated now.
type Annotation struct {
	RecurrenceCount          int  `json:"recurrenceCount"`
	ConsolidationRecommended bool `json:"consolidationRecommended"`
	EscalationEligible       bool `json:"escalationEligible"`
}

// Annotate derives the recurrence annotation from ranked matches. The best
// match is the first one.
func Annotate(matches []Match, escalationThreshold int) Annotation {
	if escalationThreshold <= 0 {
		escalationThreshold = DefaultConfig().EscalationThreshold
	}
	if len(matches) == 0 {
		return Annotation{RecurrenceCount: 1}
	}
	count := matches[0].RecurrenceCount + 1
	return Annotation{
		RecurrenceCount:          count,
		ConsolidationRecommended: true,
		EscalationEligible:       count >= escalationThreshold,
	}
}
