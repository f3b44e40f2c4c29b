package framework

// ContextBudget derives the prompt token budget from the model's context
// window minus the reservation held back for its reply.
type ContextBudget struct {
	Limit   int
	Reserve int
}

// Available returns the budget left for rendered messages.
func (b ContextBudget) Available() int {
	avail := b.Limit - b.Reserve
	if avail < 0 {
		return 0
	}
	return avail
}

// BudgetState captures context pressure for the status line.
type BudgetState int

const (
	BudgetOK BudgetState = iota
	BudgetWarning
	BudgetCritical
)

func (bs BudgetState) String() string {
	switch bs {
	case BudgetOK:
		return "ok"
	case BudgetWarning:
		return "high"
	case BudgetCritical:
		return "full"
	default:
		return "unknown"
	}
}

// State classifies used tokens against the available budget. Warning starts
// at 70% usage, critical at 90%, which is roughly where truncation begins
// to bite.
func (b ContextBudget) State(usedTokens int) BudgetState {
	avail := b.Available()
	if avail == 0 {
		return BudgetCritical
	}
	usage := float64(usedTokens) / float64(avail)
	switch {
	case usage >= 0.90:
		return BudgetCritical
	case usage >= 0.70:
		return BudgetWarning
	default:
		return BudgetOK
	}
}
