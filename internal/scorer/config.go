// Package scorer decides which discovered candidate, if any, is a company's
// official homepage. Scoring is a pure function of the candidate set; the AI
// judge may only endorse candidates the rules left ambiguous.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/config"
)

// DefaultScorerConfig returns a config.ScorerConfig with the standard
// thresholds.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		RejectThreshold: 4,
		AcceptThreshold: 7,
		StrictHomepage:  true,
		JudgeAmbiguous:  true,
		MaxJudged:       2,
	}
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string
	if c.RejectThreshold < 0 {
		errs = append(errs, "reject_threshold must be >= 0")
	}
	if c.AcceptThreshold < c.RejectThreshold {
		errs = append(errs, fmt.Sprintf("accept_threshold (%d) must be >= reject_threshold (%d)",
			c.AcceptThreshold, c.RejectThreshold))
	}
	if c.MaxJudged < 0 {
		errs = append(errs, "max_judged must be >= 0")
	}
	if len(errs) > 0 {
		return eris.New("scorer: invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}
