package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// Guard decides whether a node may execute again for the same caller. The
// identity is the (applicationId, workflowName, nodeName) triple; the
// declared idempotency_key template opts the node in but its resolved
// value is recorded for audit only.
type Guard struct {
	steps  persistence.StepRepository
	logger *slog.Logger
}

func NewGuard(steps persistence.StepRepository, logger *slog.Logger) *Guard {
	return &Guard{steps: steps, logger: logger}
}

// ShouldSkip reports whether the node already has a non-skipped attempt on
// record for this caller. Nodes without an idempotency_key and runs without
// an applicationId bypass the guard entirely. A prior failed attempt
// counts: it suppresses re-execution the same way a success does.
func (g *Guard) ShouldSkip(ctx context.Context, applicationID, workflowName string, node *models.Node) (bool, error) {
	if !node.HasIdempotencyKey() || applicationID == "" {
		return false, nil
	}

	exists, err := g.steps.ExistsNonSkipped(ctx, applicationID, workflowName, node.Name)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency for node %q: %w", node.Name, err)
	}

	if exists {
		g.logger.InfoContext(ctx, "skipping node: prior attempt exists",
			"node", node.Name,
			"application_id", applicationID,
			"workflow", workflowName,
		)
	}

	return exists, nil
}
