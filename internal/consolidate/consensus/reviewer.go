package consensus

import (
	"context"
	"fmt"
	"strings"

	"github.com/inquora/distill/internal/common"
	"github.com/inquora/distill/internal/llm"
	"github.com/inquora/distill/internal/model"
)

// Reviewer asks an LLM whether a heuristically flagged contradiction is
// real. It is a confirmation pass only: detection stays deterministic when
// the reviewer is disabled or unreachable.
type Reviewer struct {
	LLM llm.LLMClient
}

func NewReviewer(client llm.LLMClient) *Reviewer {
	return &Reviewer{LLM: client}
}

type reviewResult struct {
	Contradiction bool   `json:"contradiction"`
	Reason        string `json:"reason"`
}

func (r *Reviewer) Confirm(ctx context.Context, cluster *model.DuplicateCluster, conflicting []string) (bool, error) {
	var mentions strings.Builder
	for i := range cluster.Members {
		m := &cluster.Members[i]
		fmt.Fprintf(&mentions, "- Interview %s: %s\n", m.SourceInterviewID, m.Text())
	}

	prompt := fmt.Sprintf(`The following interview mentions were merged as one %s entity.
A heuristic flagged the statements from interviews [%s] as contradicting the others.

Mentions:
%s
Be conservative. Only confirm contradictions that represent materially conflicting claims
about the same object (e.g. "the system helps us" vs "the system causes problems"),
not differences in detail or emphasis.

Return a JSON object: { "contradiction": true/false, "reason": "..." }`,
		cluster.PrimaryEntity().Type, strings.Join(conflicting, ", "), mentions.String())

	response, err := r.LLM.Generate(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("failed to generate contradiction review: %w", err)
	}

	result, err := common.ParseJSON[reviewResult](response)
	if err != nil {
		return false, fmt.Errorf("failed to parse contradiction review: %w", err)
	}
	return result.Contradiction, nil
}
