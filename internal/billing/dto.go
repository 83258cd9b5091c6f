// AngelaMos | 2026
// dto.go

package billing

type CreateCheckoutRequest struct {
	PriceID string `json:"price_id" validate:"required"`
}

type SessionURLResponse struct {
	URL string `json:"url"`
}

type PlansResponse struct {
	Plans []Plan `json:"plans"`
}
