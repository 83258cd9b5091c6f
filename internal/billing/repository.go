// AngelaMos | 2026
// repository.go

package billing

import (
	"context"
	"fmt"

	"github.com/carterperez-dev/saasbase/internal/core"
)

type Repository interface {
	ApplyByCustomer(ctx context.Context, customerID string, ent Entitlement) error
	ApplyStatusByCustomer(ctx context.Context, customerID, status string) error
	ActivateCheckout(ctx context.Context, userID, customerID string, ent Entitlement) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

// ApplyByCustomer overwrites the whole entitlement tuple for the user
// owning the given customer id. One statement, so the tuple can never be
// observed half-written.
func (r *repository) ApplyByCustomer(ctx context.Context, customerID string, ent Entitlement) error {
	query := `
		UPDATE users
		SET stripe_subscription_id = $1,
		    stripe_product_id = $2,
		    plan_name = $3,
		    subscription_status = $4,
		    tier = $5,
		    updated_at = NOW()
		WHERE stripe_customer_id = $6 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query,
		ent.SubscriptionID,
		ent.ProductID,
		ent.PlanName,
		ent.Status,
		ent.Tier,
		customerID,
	)
	if err != nil {
		return fmt.Errorf("apply entitlement: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply entitlement: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("apply entitlement: %w", core.ErrNotFound)
	}

	return nil
}

// ApplyStatusByCustomer records a status we do not interpret, leaving the
// rest of the tuple untouched.
func (r *repository) ApplyStatusByCustomer(ctx context.Context, customerID, status string) error {
	query := `
		UPDATE users
		SET subscription_status = $1,
		    updated_at = NOW()
		WHERE stripe_customer_id = $2 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, status, customerID)
	if err != nil {
		return fmt.Errorf("apply status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply status: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("apply status: %w", core.ErrNotFound)
	}

	return nil
}

// ActivateCheckout writes the customer mapping and the first entitlement
// tuple in one statement. Keyed by user id rather than customer id since
// the mapping does not exist before this call.
func (r *repository) ActivateCheckout(ctx context.Context, userID, customerID string, ent Entitlement) error {
	query := `
		UPDATE users
		SET stripe_customer_id = $1,
		    stripe_subscription_id = $2,
		    stripe_product_id = $3,
		    plan_name = $4,
		    subscription_status = $5,
		    tier = $6,
		    updated_at = NOW()
		WHERE id = $7 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query,
		customerID,
		ent.SubscriptionID,
		ent.ProductID,
		ent.PlanName,
		ent.Status,
		ent.Tier,
		userID,
	)
	if err != nil {
		return fmt.Errorf("activate checkout: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate checkout: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("activate checkout: %w", core.ErrNotFound)
	}

	return nil
}
