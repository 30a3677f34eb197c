package consolidation

// Choice is the caller's decision for an issue that has matches.
type Choice string

const (
	ChoiceConsolidate Choice = "consolidate"
	ChoiceCreateNew   Choice = "create_new"
	ChoiceEscalate    Choice = "escalate"
)

// Valid reports whether c is a known choice. The empty choice is valid and
// means "use the default".
func (c Choice) Valid() bool {
	switch c {
	case "", ChoiceConsolidate, ChoiceCreateNew, ChoiceEscalate:
		return true
	default:
		return false
	}
}

// ActionKind is what the materializer does with one issue.
type ActionKind string

const (
	ActionCreateNew   ActionKind = "create_new"
	ActionConsolidate ActionKind = "consolidate"
	ActionEscalate    ActionKind = "escalate"
)

// Action is the resolved plan for one issue. WorkOrderID is set for
// consolidate and escalate.
type Action struct {
	Kind        ActionKind `json:"kind"`
	WorkOrderID string     `json:"workOrderId,omitempty"`
	// Overridden is set when a consolidate or escalate choice was given for
	// an issue without matches and was replaced by create_new.
	Overridden bool `json:"-"`
}

// Resolver turns matches and an optional caller choice into an Action.
type Resolver struct {
	EscalationThreshold int
}

// Resolve is pure and deterministic. Matches must be ranked best first.
func (r Resolver) Resolve(matches []Match, choice Choice) Action {
	if len(matches) == 0 {
		return Action{
			Kind:       ActionCreateNew,
			Overridden: choice == ChoiceConsolidate || choice == ChoiceEscalate,
		}
	}
	if choice == "" {
		choice = r.DefaultChoice(matches)
	}

	target := matches[0].WorkOrderID
	switch choice {
	case ChoiceCreateNew:
		return Action{Kind: ActionCreateNew}
	case ChoiceEscalate:
		return Action{Kind: ActionEscalate, WorkOrderID: target}
	default:
		return Action{Kind: ActionConsolidate, WorkOrderID: target}
	}
}

// DefaultChoice is the suggestion offered when the caller does not decide:
// consolidate below the escalation threshold, escalate at or above it.
func (r Resolver) DefaultChoice(matches []Match) Choice {
	if len(matches) == 0 {
		return ChoiceCreateNew
	}
	if Annotate(matches, r.EscalationThreshold).EscalationEligible {
		return ChoiceEscalate
	}
	return ChoiceConsolidate
}
