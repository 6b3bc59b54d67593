package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    model.Status
		outcome Outcome
		want    model.Status
	}{
		{model.StatusPending, OutcomeClaimed, model.StatusRunning},
		{model.StatusReview, OutcomeClaimed, model.StatusRunning},
		{model.StatusNoHomepage, OutcomeClaimed, model.StatusRunning},
		{model.StatusError, OutcomeClaimed, model.StatusRunning},
		{model.StatusRunning, OutcomeNoOfficial, model.StatusNoHomepage},
		{model.StatusRunning, OutcomeAIEndorsedOnly, model.StatusReview},
		{model.StatusRunning, OutcomeComplete, model.StatusDone},
		{model.StatusRunning, OutcomeIncomplete, model.StatusReview},
		{model.StatusRunning, OutcomeTimedOut, model.StatusReview},
		{model.StatusRunning, OutcomeFailed, model.StatusError},
		{model.StatusRunning, OutcomeReclaimed, model.StatusPending},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.outcome), func(t *testing.T) {
			got, err := Transition(tt.from, tt.outcome)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_Invalid(t *testing.T) {
	tests := []struct {
		from    model.Status
		outcome Outcome
	}{
		{model.StatusDone, OutcomeClaimed},
		{model.StatusPending, OutcomeComplete},
		{model.StatusRunning, OutcomeClaimed},
		{model.StatusReview, OutcomeComplete},
		{model.Status("archived"), OutcomeClaimed},
	}
	for _, tt := range tests {
		_, err := Transition(tt.from, tt.outcome)
		assert.True(t, errors.Is(err, ErrInvalidTransition), "%s on %s", tt.from, tt.outcome)
	}
}

func TestTransition_EveryTargetIsValid(t *testing.T) {
	for from, outs := range transitions {
		for o, to := range outs {
			assert.True(t, to.Valid(), "%s on %s", from, o)
			if from == model.StatusRunning && o != OutcomeReclaimed {
				assert.True(t, to.Terminal(), "%s on %s", from, o)
			}
		}
	}
}
