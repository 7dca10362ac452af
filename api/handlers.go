/*
handlers.go - HTTP API handlers for the ingredient batch ledger

PURPOSE:
  Exposes the stock engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Ingredients:
    GET    /api/ingredients                        List active ingredients
    POST   /api/ingredients                        Create ingredient
    GET    /api/ingredients/{id}                   Get ingredient details
    PUT    /api/ingredients/{id}/threshold         Update alert threshold

  Archive:
    POST   /api/ingredients/archive/{id}           Archive (soft delete)
    GET    /api/ingredients/archive/list           Archived + record counts
    POST   /api/ingredients/archive/{id}/restore   Restore
    DELETE /api/ingredients/archive/{id}/permanent Permanent delete

  Stock movement:
    GET    /api/batches/ingredient/{id}            Batches for an ingredient
    GET    /api/consumptions/ingredient/{id}       Audit trail
    POST   /api/stockins                           Record a delivery
    POST   /api/spoilages                          Record waste
    POST   /api/recipes/consume                    Sell a product

  Feed:
    GET    /api/notifications                      Current snapshot

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation, conversion, shortfall, name conflict, blocked delete
  - 404: Unknown ingredient
  - 503: Lock wait exceeded (retryable flag set)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - stock/engine.go: The domain logic behind every mutation
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brewkeep/stockroom/metrics"
	"github.com/brewkeep/stockroom/stock"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     stock.Store
	Engine    *stock.Engine
	Archive   *stock.ArchiveManager
	Bus       *stock.NotificationBus
	Evaluator *stock.Evaluator
	Resolver  *stock.Resolver
	Metrics   *metrics.Collector
}

// NewHandler creates a handler around a fully wired engine.
func NewHandler(store stock.Store, engine *stock.Engine, archive *stock.ArchiveManager, bus *stock.NotificationBus, evaluator *stock.Evaluator, resolver *stock.Resolver, collector *metrics.Collector) *Handler {
	return &Handler{
		Store:     store,
		Engine:    engine,
		Archive:   archive,
		Bus:       bus,
		Evaluator: evaluator,
		Resolver:  resolver,
		Metrics:   collector,
	}
}

// =============================================================================
// INGREDIENT HANDLERS
// =============================================================================

// ListIngredients returns all active ingredients with derived fields.
func (h *Handler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.Store.ListIngredients(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list ingredients", err)
		return
	}

	dtos := make([]IngredientDTO, 0, len(ingredients))
	for _, ing := range ingredients {
		dtos = append(dtos, toIngredientDTO(ing))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateIngredient registers a new ingredient with an empty batch set.
func (h *Handler) CreateIngredient(w http.ResponseWriter, r *http.Request) {
	var req CreateIngredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		h.writeDomainError(w, &stock.ValidationError{Field: "name", Message: "must not be empty"})
		return
	}

	category, err := stock.ParseCategory(req.Category)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	baseUnit, err := stock.ParseUnit(req.BaseUnit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	threshold, err := parseQuantity(req.AlertThreshold, req.BaseUnit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if threshold.IsNegative() {
		h.writeDomainError(w, &stock.ValidationError{Field: "alert_threshold", Message: "must not be negative"})
		return
	}

	existing, err := h.Store.FindActiveByName(r.Context(), stock.NormalizeName(req.Name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check name", err)
		return
	}
	if existing != nil {
		h.writeDomainError(w, &stock.NameConflictError{Name: req.Name, ExistingID: existing.ID})
		return
	}

	ing := stock.Ingredient{
		ID:             stock.IngredientID(uuid.NewString()),
		Name:           req.Name,
		Category:       category,
		BaseUnit:       baseUnit,
		AlertThreshold: threshold,
		Quantity:       stock.Quantity{Unit: baseUnit},
		CreatedAt:      time.Now(),
	}
	if err := h.Store.SaveIngredient(r.Context(), ing); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Evaluator.Refresh(r.Context())
	writeJSON(w, http.StatusCreated, toIngredientDTO(ing))
}

// GetIngredient returns a single ingredient, archived or not.
func (h *Handler) GetIngredient(w http.ResponseWriter, r *http.Request) {
	id := stock.IngredientID(chi.URLParam(r, "id"))
	ing, err := h.Store.GetIngredient(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTO(*ing))
}

// UpdateThreshold changes the low-stock alert threshold under the
// ingredient's lock, then re-evaluates the feed.
func (h *Handler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	id := stock.IngredientID(chi.URLParam(r, "id"))

	var req UpdateThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	release, err := h.Engine.Locks.Acquire(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	defer release()

	ing, err := h.Store.GetIngredient(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	threshold, err := parseQuantity(req.AlertThreshold, string(ing.BaseUnit))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if threshold.IsNegative() {
		h.writeDomainError(w, &stock.ValidationError{Field: "alert_threshold", Message: "must not be negative"})
		return
	}

	ing.AlertThreshold = threshold
	if err := h.Store.SaveIngredient(r.Context(), *ing); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Evaluator.Refresh(r.Context())
	writeJSON(w, http.StatusOK, toIngredientDTO(*ing))
}

// =============================================================================
// ARCHIVE HANDLERS
// =============================================================================

func (h *Handler) ArchiveIngredient(w http.ResponseWriter, r *http.Request) {
	id := stock.IngredientID(chi.URLParam(r, "id"))
	ing, err := h.Archive.Archive(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTO(*ing))
}

func (h *Handler) ListArchived(w http.ResponseWriter, r *http.Request) {
	archived, err := h.Archive.ListArchived(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list archived ingredients", err)
		return
	}

	dtos := make([]ArchivedIngredientDTO, 0, len(archived))
	for _, a := range archived {
		dtos = append(dtos, ArchivedIngredientDTO{
			IngredientDTO: toIngredientDTO(a.Ingredient),
			RecordCount:   a.RecordCount,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RestoreIngredient(w http.ResponseWriter, r *http.Request) {
	id := stock.IngredientID(chi.URLParam(r, "id"))
	ing, err := h.Archive.Restore(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTO(*ing))
}

func (h *Handler) DeleteIngredient(w http.ResponseWriter, r *http.Request) {
	id := stock.IngredientID(chi.URLParam(r, "id"))
	if err := h.Archive.PermanentlyDelete(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BATCH AND AUDIT HANDLERS
// =============================================================================

// ListBatches returns an ingredient's batches. Expired batches are hidden
// unless ?includeExpired=true.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	id := stock.IngredientID(chi.URLParam(r, "id"))
	includeExpired := r.URL.Query().Get("includeExpired") == "true"

	if _, err := h.Store.GetIngredient(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	batches, err := h.Store.ListBatches(r.Context(), id, includeExpired)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list batches", err)
		return
	}

	dtos := make([]BatchDTO, 0, len(batches))
	for _, b := range batches {
		dtos = append(dtos, toBatchDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListConsumptions returns an ingredient's audit trail, newest first.
func (h *Handler) ListConsumptions(w http.ResponseWriter, r *http.Request) {
	id := stock.IngredientID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetIngredient(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	records, err := h.Store.ListRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list consumptions", err)
		return
	}

	dtos := make([]ConsumptionRecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MUTATION HANDLERS
// =============================================================================

// StockIn records a delivery as one new batch per ingredient line.
func (h *Handler) StockIn(w http.ResponseWriter, r *http.Request) {
	var req StockInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entries := make([]stock.StockInEntry, 0, len(req.Ingredients))
	for _, line := range req.Ingredients {
		q, err := parseQuantity(line.Quantity, line.Unit)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		entries = append(entries, stock.StockInEntry{
			IngredientID:   stock.IngredientID(line.IngredientID),
			Quantity:       q,
			ExpirationDate: line.ExpirationDate,
		})
	}

	batches, err := h.Engine.StockIn(r.Context(), req.Stockman, entries)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.StockIn(len(batches))
	}

	dtos := make([]BatchDTO, 0, len(batches))
	for _, b := range batches {
		dtos = append(dtos, toBatchDTO(b))
	}
	writeJSON(w, http.StatusCreated, StockInResponse{Batches: dtos})
}

// RecordSpoilage consumes wasted stock, all-or-nothing across entries.
func (h *Handler) RecordSpoilage(w http.ResponseWriter, r *http.Request) {
	var req SpoilageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entries := make([]stock.SpoilageEntry, 0, len(req.Ingredients))
	for _, line := range req.Ingredients {
		q, err := parseQuantity(line.Quantity, line.Unit)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		entries = append(entries, stock.SpoilageEntry{
			IngredientID: stock.IngredientID(line.IngredientID),
			Quantity:     q,
		})
	}

	plans, ref, err := h.Engine.RecordSpoilage(r.Context(), req.PersonInCharge, entries, req.Remarks)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.Consumption(stock.ReasonSpoilage)
	}
	writeJSON(w, http.StatusCreated, SpoilageResponse{
		Reference: ref,
		Remarks:   req.Remarks,
		Plans:     toPlanDTOs(plans),
	})
}

// ConsumeRecipe resolves an inline product recipe at the requested size
// and consumes the result as a sale.
func (h *Handler) ConsumeRecipe(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	items := make([]stock.RecipeItem, 0, len(req.Items))
	for _, item := range req.Items {
		flat, err := parseQuantity(item.Quantity, item.Unit)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		ri := stock.RecipeItem{
			IngredientID: stock.IngredientID(item.IngredientID),
			FlatQuantity: flat,
		}
		if len(item.PerSize) > 0 {
			ri.PerSize = make(map[stock.Size]stock.Quantity, len(item.PerSize))
			for size, value := range item.PerSize {
				q, err := parseQuantity(value, item.Unit)
				if err != nil {
					h.writeDomainError(w, err)
					return
				}
				ri.PerSize[stock.Size(size)] = q
			}
		}
		items = append(items, ri)
	}

	product := stock.Product{ID: req.ProductID, Name: req.ProductName, Items: items}
	plans, err := h.Engine.ConsumeProduct(r.Context(), h.Resolver, product, stock.Size(req.Size), req.RelatedTransactionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.Consumption(stock.ReasonSale)
	}
	writeJSON(w, http.StatusCreated, ConsumeRecipeResponse{Plans: toPlanDTOs(plans)})
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// ListNotifications returns the current feed snapshot for replay.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toNotificationDTOs(h.Bus.Snapshot()))
}

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseQuantity(value, unit string) (stock.Quantity, error) {
	u, err := stock.ParseUnit(unit)
	if err != nil {
		return stock.Quantity{}, err
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return stock.Quantity{}, &stock.ValidationError{Field: "quantity", Message: "must be a decimal number"}
	}
	return stock.Quantity{Value: d, Unit: u}, nil
}

// writeDomainError maps a stock error onto the HTTP taxonomy and records
// the rejection metrics.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	if h.Metrics != nil {
		if stock.IsRetryable(err) {
			h.Metrics.LockTimeout()
		}
		if errors.Is(err, stock.ErrInsufficientStock) {
			h.Metrics.ShortfallRejected()
		}
	}

	status := http.StatusInternalServerError
	switch {
	case stock.IsNotFound(err):
		status = http.StatusNotFound
	case stock.IsRetryable(err):
		status = http.StatusServiceUnavailable
	case stock.IsClientError(err):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Code:      errorCode(err),
		Retryable: stock.IsRetryable(err),
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, stock.ErrValidation):
		return "validation"
	case errors.Is(err, stock.ErrConversion):
		return "conversion"
	case errors.Is(err, stock.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, stock.ErrRecipeIncomplete):
		return "recipe_incomplete"
	case errors.Is(err, stock.ErrNameConflict):
		return "name_conflict"
	case errors.Is(err, stock.ErrHasHistoricalRecords):
		return "has_historical_records"
	case errors.Is(err, stock.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, stock.ErrIngredientNotFound):
		return "not_found"
	case errors.Is(err, stock.ErrIngredientArchived):
		return "archived"
	case errors.Is(err, stock.ErrDuplicateBatchNumber):
		return "duplicate_batch_number"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := ErrorResponse{Error: msg}
	if err != nil {
		body.Error = msg + ": " + err.Error()
	}
	writeJSON(w, status, body)
}
