package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewkeep/stockroom/api"
	"github.com/brewkeep/stockroom/metrics"
	"github.com/brewkeep/stockroom/stock"
	"github.com/brewkeep/stockroom/stock/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	locks := stock.NewLockManager(time.Second)
	bus := stock.NewNotificationBus()
	evaluator := stock.NewEvaluator(mem, bus)

	engine := stock.NewEngine(mem, locks)
	engine.Evaluator = evaluator

	archive := stock.NewArchiveManager(mem, locks)
	archive.Evaluator = evaluator

	h := api.NewHandler(mem, engine, archive, bus, evaluator, stock.NewResolver(nil), metrics.New())
	srv := httptest.NewServer(api.NewRouter(h, nil))
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createIngredient(t *testing.T, srv *httptest.Server, name, category, unit, threshold string) api.IngredientDTO {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/ingredients", api.CreateIngredientRequest{
		Name:           name,
		Category:       category,
		BaseUnit:       unit,
		AlertThreshold: threshold,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.IngredientDTO](t, resp)
}

func stockInOne(t *testing.T, srv *httptest.Server, id, quantity, unit string, exp *time.Time) api.StockInResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/stockins", api.StockInRequest{
		Stockman: "alex",
		Ingredients: []api.StockInLine{
			{IngredientID: id, Quantity: quantity, Unit: unit, ExpirationDate: exp},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.StockInResponse](t, resp)
}

// =============================================================================
// INGREDIENT ENDPOINTS
// =============================================================================

func TestCreateAndListIngredients(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "100")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ml", created.BaseUnit)
	assert.Equal(t, "0", created.Quantity)

	resp, err := http.Get(srv.URL + "/api/ingredients")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]api.IngredientDTO](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "Milk", list[0].Name)
}

func TestCreateIngredient_RejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/ingredients", api.CreateIngredientRequest{
		Name: "Milk", Category: "frozen", BaseUnit: "ml", AlertThreshold: "0",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "validation", body.Code)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/ingredients", api.CreateIngredientRequest{
		Name: "Milk", Category: "liquid_ingredient", BaseUnit: "oz", AlertThreshold: "0",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateIngredient_NameConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "0")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/ingredients", api.CreateIngredientRequest{
		Name: "  MILK ", Category: "liquid_ingredient", BaseUnit: "ml", AlertThreshold: "0",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "name_conflict", body.Code)
}

func TestGetIngredient_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/ingredients/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "not_found", body.Code)
}

func TestUpdateThreshold(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "100")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/ingredients/"+ing.ID+"/threshold",
		api.UpdateThresholdRequest{AlertThreshold: "250"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[api.IngredientDTO](t, resp)
	assert.Equal(t, "250", updated.AlertThreshold)
}

// =============================================================================
// STOCK FLOW ENDPOINTS
// =============================================================================

func TestStockInAndConsumeFlow(t *testing.T) {
	// GIVEN: Milk stocked as 2 batches, the sooner-expiring one smaller
	// WHEN: A recipe sale needs more than the first batch holds
	// THEN: The drain spans both batches in expiration order and the
	//       audit trail records each touched batch

	srv, _ := newTestServer(t)
	ing := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "0")

	soon := time.Now().AddDate(0, 0, 2)
	later := time.Now().AddDate(0, 0, 10)
	stockInOne(t, srv, ing.ID, "500", "ml", &soon)
	stockInOne(t, srv, ing.ID, "1000", "ml", &later)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/recipes/consume", api.ConsumeRecipeRequest{
		ProductID:            "latte",
		ProductName:          "Latte",
		Size:                 "medium",
		Items:                []api.RecipeItemRequest{{IngredientID: ing.ID, Quantity: "700", Unit: "ml"}},
		RelatedTransactionID: "order-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[api.ConsumeRecipeResponse](t, resp)
	require.Len(t, out.Plans, 1)
	require.Len(t, out.Plans[0].Lines, 2)
	assert.Equal(t, "500", out.Plans[0].Lines[0].Quantity)
	assert.Equal(t, "200", out.Plans[0].Lines[1].Quantity)

	// Aggregate reflects the drain.
	resp, err := http.Get(srv.URL + "/api/ingredients/" + ing.ID)
	require.NoError(t, err)
	got := decode[api.IngredientDTO](t, resp)
	assert.Equal(t, "800", got.Quantity)

	// Audit trail has one record per touched batch.
	resp, err = http.Get(srv.URL + "/api/consumptions/ingredient/" + ing.ID)
	require.NoError(t, err)
	records := decode[[]api.ConsumptionRecordDTO](t, resp)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "sale", r.Reason)
		assert.Equal(t, "order-1", r.RelatedTransactionID)
	}
}

func TestStockIn_ConvertsUnits(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := createIngredient(t, srv, "Flour", "solid_ingredient", "g", "0")

	out := stockInOne(t, srv, ing.ID, "2", "kg", nil)
	require.Len(t, out.Batches, 1)
	assert.Equal(t, "2000", out.Batches[0].OriginalQuantity)
	assert.Equal(t, "g", out.Batches[0].Unit)
	assert.Equal(t, "2", out.Batches[0].EntryQuantity)
	assert.Equal(t, "kg", out.Batches[0].EntryUnit)
}

func TestConsume_ShortfallReturns400(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "0")
	stockInOne(t, srv, ing.ID, "600", "ml", nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/recipes/consume", api.ConsumeRecipeRequest{
		ProductID: "latte",
		Size:      "large",
		Items:     []api.RecipeItemRequest{{IngredientID: ing.ID, Quantity: "700", Unit: "ml"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "insufficient_stock", body.Code)
	assert.False(t, body.Retryable)
}

func TestSpoilage(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "0")
	stockInOne(t, srv, ing.ID, "1000", "ml", nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/spoilages", api.SpoilageRequest{
		PersonInCharge: "jordan",
		Ingredients:    []api.SpoilageLine{{IngredientID: ing.ID, Quantity: "250", Unit: "ml"}},
		Remarks:        "dropped carton",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[api.SpoilageResponse](t, resp)
	assert.NotEmpty(t, out.Reference)
	assert.Equal(t, "dropped carton", out.Remarks)
	require.Len(t, out.Plans, 1)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/spoilages", api.SpoilageRequest{
		Ingredients: []api.SpoilageLine{{IngredientID: ing.ID, Quantity: "1", Unit: "ml"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListBatches_IncludeExpiredFlag(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "0")

	past := time.Now().AddDate(0, 0, -1)
	stockInOne(t, srv, ing.ID, "300", "ml", &past)
	stockInOne(t, srv, ing.ID, "500", "ml", nil)

	// A consume marks the overdue batch expired lazily.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/recipes/consume", api.ConsumeRecipeRequest{
		ProductID: "latte",
		Size:      "small",
		Items:     []api.RecipeItemRequest{{IngredientID: ing.ID, Quantity: "100", Unit: "ml"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/batches/ingredient/" + ing.ID)
	require.NoError(t, err)
	visible := decode[[]api.BatchDTO](t, resp)
	assert.Len(t, visible, 1)

	resp, err = http.Get(srv.URL + "/api/batches/ingredient/" + ing.ID + "?includeExpired=true")
	require.NoError(t, err)
	all := decode[[]api.BatchDTO](t, resp)
	assert.Len(t, all, 2)
}

// =============================================================================
// ARCHIVE ENDPOINTS
// =============================================================================

func TestArchiveLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "0")
	stockInOne(t, srv, ing.ID, "500", "ml", nil)

	// Consume so history blocks permanent deletion.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/recipes/consume", api.ConsumeRecipeRequest{
		ProductID: "latte",
		Size:      "small",
		Items:     []api.RecipeItemRequest{{IngredientID: ing.ID, Quantity: "100", Unit: "ml"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/ingredients/archive/%s", srv.URL, ing.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	archived := decode[api.IngredientDTO](t, resp)
	assert.True(t, archived.Archived)

	resp, err := http.Get(srv.URL + "/api/ingredients/archive/list")
	require.NoError(t, err)
	list := decode[[]api.ArchivedIngredientDTO](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].RecordCount)

	// Blocked by history.
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/ingredients/archive/%s/permanent", srv.URL, ing.ID), nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "has_historical_records", body.Code)

	// Restore works while no active ingredient took the name.
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/ingredients/archive/%s/restore", srv.URL, ing.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	restored := decode[api.IngredientDTO](t, resp)
	assert.False(t, restored.Archived)
}

func TestRestore_ConflictOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	old := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "0")

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/ingredients/archive/%s", srv.URL, old.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	createIngredient(t, srv, "milk", "liquid_ingredient", "ml", "0")

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/ingredients/archive/%s/restore", srv.URL, old.ID), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "name_conflict", body.Code)
}

// =============================================================================
// NOTIFICATIONS AND OPERATIONAL ENDPOINTS
// =============================================================================

func TestNotificationsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := createIngredient(t, srv, "Milk", "liquid_ingredient", "ml", "500")
	stockInOne(t, srv, ing.ID, "200", "ml", nil)

	resp, err := http.Get(srv.URL + "/api/notifications")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	feed := decode[[]api.NotificationDTO](t, resp)
	require.NotEmpty(t, feed)
	assert.Equal(t, "low_stock", feed[0].Type)
	assert.Equal(t, "high", feed[0].Priority)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
