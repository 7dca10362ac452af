/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - stock/types.go: Domain model these map from
*/
package api

import (
	"time"

	"github.com/brewkeep/stockroom/stock"
)

// =============================================================================
// INGREDIENTS
// =============================================================================

// IngredientDTO represents an ingredient with its derived stock fields.
type IngredientDTO struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Category         string     `json:"category"`
	BaseUnit         string     `json:"base_unit"`
	AlertThreshold   string     `json:"alert_threshold"`
	Quantity         string     `json:"quantity"`
	ActiveBatchCount int        `json:"active_batch_count"`
	NextExpiration   *time.Time `json:"next_expiration,omitempty"`
	Archived         bool       `json:"archived"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toIngredientDTO(ing stock.Ingredient) IngredientDTO {
	return IngredientDTO{
		ID:               string(ing.ID),
		Name:             ing.Name,
		Category:         string(ing.Category),
		BaseUnit:         string(ing.BaseUnit),
		AlertThreshold:   ing.AlertThreshold.Value.String(),
		Quantity:         ing.Quantity.Value.String(),
		ActiveBatchCount: ing.ActiveBatchCount,
		NextExpiration:   ing.NextExpiration,
		Archived:         ing.Archived,
		ArchivedAt:       ing.ArchivedAt,
		CreatedAt:        ing.CreatedAt,
	}
}

// ArchivedIngredientDTO adds the historical-record count so the UI can
// tell which archived ingredients are permanently deletable.
type ArchivedIngredientDTO struct {
	IngredientDTO
	RecordCount int `json:"record_count"`
}

// CreateIngredientRequest is the request to create an ingredient.
type CreateIngredientRequest struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	BaseUnit       string `json:"base_unit"`
	AlertThreshold string `json:"alert_threshold"`
}

// UpdateThresholdRequest updates the low-stock alert threshold.
type UpdateThresholdRequest struct {
	AlertThreshold string `json:"alert_threshold"`
}

// =============================================================================
// BATCHES
// =============================================================================

// BatchDTO represents a batch in API responses. Quantities are in the
// ingredient's base unit; the entry fields preserve what was typed in.
type BatchDTO struct {
	ID               string     `json:"id"`
	IngredientID     string     `json:"ingredient_id"`
	BatchNumber      string     `json:"batch_number"`
	OriginalQuantity string     `json:"original_quantity"`
	CurrentQuantity  string     `json:"current_quantity"`
	Unit             string     `json:"unit"`
	EntryQuantity    string     `json:"entry_quantity"`
	EntryUnit        string     `json:"entry_unit"`
	StockInDate      time.Time  `json:"stock_in_date"`
	ExpirationDate   *time.Time `json:"expiration_date,omitempty"`
	HasExpiration    bool       `json:"has_expiration"`
	Status           string     `json:"status"`
}

func toBatchDTO(b stock.Batch) BatchDTO {
	return BatchDTO{
		ID:               string(b.ID),
		IngredientID:     string(b.IngredientID),
		BatchNumber:      b.BatchNumber,
		OriginalQuantity: b.OriginalQuantity.Value.String(),
		CurrentQuantity:  b.CurrentQuantity.Value.String(),
		Unit:             string(b.CurrentQuantity.Unit),
		EntryQuantity:    b.EntryQuantity.Value.String(),
		EntryUnit:        string(b.EntryQuantity.Unit),
		StockInDate:      b.StockInDate,
		ExpirationDate:   b.ExpirationDate,
		HasExpiration:    b.HasExpiration,
		Status:           string(b.Status),
	}
}

// =============================================================================
// STOCK-IN
// =============================================================================

// StockInLine is one ingredient entry of a stock-in request.
type StockInLine struct {
	IngredientID   string     `json:"ingredient_id"`
	Quantity       string     `json:"quantity"`
	Unit           string     `json:"unit"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// StockInRequest records one delivery: who received it and what arrived.
type StockInRequest struct {
	Stockman    string        `json:"stockman"`
	Ingredients []StockInLine `json:"ingredients"`
}

// StockInResponse returns the created batches.
type StockInResponse struct {
	Batches []BatchDTO `json:"batches"`
}

// =============================================================================
// CONSUMPTION AND SPOILAGE
// =============================================================================

// ConsumptionLineDTO is one batch's contribution to a consumption.
type ConsumptionLineDTO struct {
	BatchID     string `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    string `json:"quantity"`
}

// ConsumptionPlanDTO describes how one ingredient requirement was satisfied.
type ConsumptionPlanDTO struct {
	IngredientID string               `json:"ingredient_id"`
	Requested    string               `json:"requested"`
	Unit         string               `json:"unit"`
	Lines        []ConsumptionLineDTO `json:"lines"`
}

func toPlanDTO(p stock.ConsumptionPlan) ConsumptionPlanDTO {
	dto := ConsumptionPlanDTO{
		IngredientID: string(p.IngredientID),
		Requested:    p.Requested.Value.String(),
		Unit:         string(p.Requested.Unit),
		Lines:        make([]ConsumptionLineDTO, 0, len(p.Lines)),
	}
	for _, l := range p.Lines {
		dto.Lines = append(dto.Lines, ConsumptionLineDTO{
			BatchID:     string(l.BatchID),
			BatchNumber: l.BatchNumber,
			Quantity:    l.Quantity.Value.String(),
		})
	}
	return dto
}

func toPlanDTOs(plans []stock.ConsumptionPlan) []ConsumptionPlanDTO {
	out := make([]ConsumptionPlanDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanDTO(p))
	}
	return out
}

// ConsumptionRecordDTO is one row of the append-only audit trail.
type ConsumptionRecordDTO struct {
	ID                   string    `json:"id"`
	BatchID              string    `json:"batch_id"`
	IngredientID         string    `json:"ingredient_id"`
	Quantity             string    `json:"quantity"`
	Unit                 string    `json:"unit"`
	Reason               string    `json:"reason"`
	RelatedTransactionID string    `json:"related_transaction_id,omitempty"`
	RecordedBy           string    `json:"recorded_by,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

func toRecordDTO(r stock.ConsumptionRecord) ConsumptionRecordDTO {
	return ConsumptionRecordDTO{
		ID:                   string(r.ID),
		BatchID:              string(r.BatchID),
		IngredientID:         string(r.IngredientID),
		Quantity:             r.QuantityConsumed.Value.String(),
		Unit:                 string(r.QuantityConsumed.Unit),
		Reason:               string(r.Reason),
		RelatedTransactionID: r.RelatedTransactionID,
		RecordedBy:           r.RecordedBy,
		Timestamp:            r.Timestamp,
	}
}

// SpoilageLine is one wasted-ingredient entry.
type SpoilageLine struct {
	IngredientID string `json:"ingredient_id"`
	Quantity     string `json:"quantity"`
	Unit         string `json:"unit"`
}

// SpoilageRequest records waste: who is responsible and what was lost.
type SpoilageRequest struct {
	PersonInCharge string         `json:"person_in_charge"`
	Ingredients    []SpoilageLine `json:"ingredients"`
	Remarks        string         `json:"remarks,omitempty"`
}

// SpoilageResponse echoes the generated reference and the drain plans.
type SpoilageResponse struct {
	Reference string               `json:"reference"`
	Remarks   string               `json:"remarks,omitempty"`
	Plans     []ConsumptionPlanDTO `json:"plans"`
}

// =============================================================================
// RECIPE CONSUMPTION
// =============================================================================

// RecipeItemRequest is one ingredient line of an inline recipe.
type RecipeItemRequest struct {
	IngredientID string            `json:"ingredient_id"`
	Quantity     string            `json:"quantity"`
	Unit         string            `json:"unit"`
	PerSize      map[string]string `json:"per_size,omitempty"`
}

// ConsumeRecipeRequest resolves a product recipe at a size and consumes
// the result as a sale.
type ConsumeRecipeRequest struct {
	ProductID            string              `json:"product_id"`
	ProductName          string              `json:"product_name"`
	Size                 string              `json:"size"`
	Items                []RecipeItemRequest `json:"items"`
	RelatedTransactionID string              `json:"related_transaction_id"`
}

// ConsumeRecipeResponse returns the per-ingredient drain plans.
type ConsumeRecipeResponse struct {
	Plans []ConsumptionPlanDTO `json:"plans"`
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// NotificationDTO is one entry of the live feed snapshot.
type NotificationDTO struct {
	ID           string    `json:"_id"`
	IngredientID string    `json:"ingredient_id"`
	Type         string    `json:"type"`
	Priority     string    `json:"priority"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Date         time.Time `json:"date"`
}

func toNotificationDTOs(snapshot []stock.Notification) []NotificationDTO {
	out := make([]NotificationDTO, 0, len(snapshot))
	for _, n := range snapshot {
		out = append(out, NotificationDTO{
			ID:           n.ID,
			IngredientID: string(n.IngredientID),
			Type:         string(n.Type),
			Priority:     string(n.Priority),
			Title:        n.Title,
			Message:      n.Message,
			Date:         n.Date,
		})
	}
	return out
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
