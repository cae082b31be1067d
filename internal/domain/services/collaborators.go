package services

import (
	"context"

	"github.com/google/uuid"

	"reviso/internal/domain/models"
)

// PlanGenerator turns free-form instructions plus retrieved block candidates
// into an edit plan. Implementations live outside this module; the engine
// only validates and applies what they produce.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, instructions string, candidates []models.BlockCandidate) (*models.EditPlan, error)
}

// Retriever finds candidate blocks relevant to a query within one revision.
type Retriever interface {
	Retrieve(ctx context.Context, query string, revID uuid.UUID, limit int) ([]models.BlockCandidate, error)
}
