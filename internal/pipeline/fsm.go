package pipeline

import (
	"errors"
	"fmt"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Outcome is the event that drives a status transition.
type Outcome string

const (
	OutcomeClaimed    Outcome = "claimed"
	OutcomeNoOfficial Outcome = "no_official"
	// OutcomeAIEndorsedOnly covers records whose best candidate is only an
	// AI endorsement or a provisional hint.
	OutcomeAIEndorsedOnly Outcome = "ai_endorsed_only"
	OutcomeComplete       Outcome = "extracted_complete"
	OutcomeIncomplete     Outcome = "extracted_incomplete"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeFailed         Outcome = "failed"
	OutcomeReclaimed      Outcome = "reclaimed"
)

// ErrInvalidTransition is returned for a (status, outcome) pair outside the
// transition table.
var ErrInvalidTransition = errors.New("pipeline: invalid transition")

var transitions = map[model.Status]map[Outcome]model.Status{
	model.StatusPending:    {OutcomeClaimed: model.StatusRunning},
	model.StatusReview:     {OutcomeClaimed: model.StatusRunning},
	model.StatusNoHomepage: {OutcomeClaimed: model.StatusRunning},
	model.StatusError:      {OutcomeClaimed: model.StatusRunning},
	model.StatusRunning: {
		OutcomeNoOfficial:     model.StatusNoHomepage,
		OutcomeAIEndorsedOnly: model.StatusReview,
		OutcomeComplete:       model.StatusDone,
		OutcomeIncomplete:     model.StatusReview,
		OutcomeTimedOut:       model.StatusReview,
		OutcomeFailed:         model.StatusError,
		OutcomeReclaimed:      model.StatusPending,
	},
}

// Transition returns the status reached from state on outcome.
func Transition(state model.Status, outcome Outcome) (model.Status, error) {
	if to, ok := transitions[state][outcome]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, state, outcome)
}
