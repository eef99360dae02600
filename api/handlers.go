/*
handlers.go - HTTP API handlers for the dairy back-office

PURPOSE:
  Exposes the cooperative's registry and billing engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Farmers:
    GET    /api/farmers               List farmers for an owner
    POST   /api/farmers               Register farmer
    GET    /api/farmers/{id}          Get farmer
    PUT    /api/farmers/{id}          Update farmer
    DELETE /api/farmers/{id}          Delete farmer (+ their milk logs)

  Milk:
    GET    /api/milk                  List/filter milk sessions
    POST   /api/milk                  Record a collection
    DELETE /api/milk/{id}             Delete a log

  Feed:
    GET    /api/feed                  List purchases (all or per farmer)
    POST   /api/feed                  Record a purchase
    PUT    /api/feed/{id}             Edit a purchase
    DELETE /api/feed/{id}             Delete a purchase

  Billing:
    POST   /api/billing/preview       Dry-run settlement
    POST   /api/billing/generate      Settle a cycle
    GET    /api/billing/balance       Running carry-forward
    GET    /api/billing/history       Bill history, newest first
    PUT    /api/billing/payment/{id}  Correct a paid amount
    GET    /api/billing/{id}          Get one bill
    DELETE /api/billing/{id}          Delete a bill

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, store)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, rejected payments
  - 404: Resource not found
  - 409: Duplicate farmer id
  - 500: Internal errors
  Rejected fractional payments carry suggested_floor/suggested_ceil so
  the client can offer the two rounding choices.

OWNERSHIP:
  There is no authentication layer; owner_id arrives explicitly in the
  request (query or body) and scopes every registry operation.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shreyasbagave/Dairy/billing"
	"github.com/shreyasbagave/Dairy/coop"
	"github.com/shreyasbagave/Dairy/metrics"
	"github.com/shreyasbagave/Dairy/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *billing.Engine

	logger *zap.Logger
}

// NewHandler creates a new handler. A nil logger disables logging.
func NewHandler(store *sqlite.Store, engine *billing.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:  store,
		Engine: engine,
		logger: logger.Named("api"),
	}
}

// =============================================================================
// FARMER HANDLERS
// =============================================================================

// ListFarmers returns all farmers registered under an owner.
// GET /api/farmers?owner_id=
func (h *Handler) ListFarmers(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}

	farmers, err := h.Store.ListFarmers(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list farmers", err)
		return
	}

	dtos := make([]FarmerDTO, 0, len(farmers))
	for _, f := range farmers {
		dtos = append(dtos, toFarmerDTO(f))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFarmer registers a farmer. The farmer id must be free across the
// whole system, not just this owner.
// POST /api/farmers
func (h *Handler) CreateFarmer(w http.ResponseWriter, r *http.Request) {
	var req CreateFarmerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	farmer := coop.Farmer{
		FarmerID: req.FarmerID,
		OwnerID:  req.OwnerID,
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
		Bank: coop.BankDetails{
			AccountNo: req.BankAccountNo,
			IFSC:      req.BankIFSC,
		},
	}
	if err := farmer.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farmer", err)
		return
	}

	if err := h.Store.SaveFarmer(r.Context(), farmer); err != nil {
		if errors.Is(err, coop.ErrDuplicateFarmer) {
			writeError(w, http.StatusConflict, "Farmer id already exists", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save farmer", err)
		return
	}

	h.logger.Info("farmer registered",
		zap.String("farmer_id", farmer.FarmerID),
		zap.String("owner_id", farmer.OwnerID),
	)
	writeJSON(w, http.StatusCreated, toFarmerDTO(farmer))
}

// GetFarmer returns one farmer.
// GET /api/farmers/{id}?owner_id=
func (h *Handler) GetFarmer(w http.ResponseWriter, r *http.Request) {
	farmerID := chi.URLParam(r, "id")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}

	farmer, err := h.Store.GetFarmer(r.Context(), ownerID, farmerID)
	if err != nil {
		if errors.Is(err, coop.ErrFarmerNotFound) {
			writeError(w, http.StatusNotFound, "Farmer not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get farmer", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerDTO(*farmer))
}

// UpdateFarmer edits a farmer's registration fields.
// PUT /api/farmers/{id}?owner_id=
func (h *Handler) UpdateFarmer(w http.ResponseWriter, r *http.Request) {
	farmerID := chi.URLParam(r, "id")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}

	var req UpdateFarmerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	farmer := coop.Farmer{
		FarmerID: farmerID,
		OwnerID:  ownerID,
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
		Bank: coop.BankDetails{
			AccountNo: req.BankAccountNo,
			IFSC:      req.BankIFSC,
		},
	}
	if err := farmer.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farmer", err)
		return
	}

	if err := h.Store.UpdateFarmer(r.Context(), farmer); err != nil {
		if errors.Is(err, coop.ErrFarmerNotFound) {
			writeError(w, http.StatusNotFound, "Farmer not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update farmer", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerDTO(farmer))
}

// DeleteFarmer removes a farmer and the milk logs recorded for them.
// Bills and feed purchases are kept as financial history.
// DELETE /api/farmers/{id}?owner_id=
func (h *Handler) DeleteFarmer(w http.ResponseWriter, r *http.Request) {
	farmerID := chi.URLParam(r, "id")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}

	milkDeleted, err := h.Store.DeleteFarmer(r.Context(), ownerID, farmerID)
	if err != nil {
		if errors.Is(err, coop.ErrFarmerNotFound) {
			writeError(w, http.StatusNotFound, "Farmer not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete farmer", err)
		return
	}

	h.logger.Info("farmer deleted",
		zap.String("farmer_id", farmerID),
		zap.Int64("milk_logs_deleted", milkDeleted),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"milk_logs_deleted": milkDeleted,
	})
}

// =============================================================================
// MILK HANDLERS
// =============================================================================

// AddMilkSession records one collection. The farmer must exist under the
// owner; total cost is computed here, never trusted from the client.
// POST /api/milk
func (h *Handler) AddMilkSession(w http.ResponseWriter, r *http.Request) {
	var req AddMilkSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	session, err := coop.ParseSession(req.Session)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session", err)
		return
	}

	if _, err := h.Store.GetFarmer(r.Context(), req.OwnerID, req.FarmerID); err != nil {
		if errors.Is(err, coop.ErrFarmerNotFound) {
			writeError(w, http.StatusNotFound, "Farmer not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to look up farmer", err)
		return
	}

	m, err := coop.NewMilkSession(uuid.NewString(), req.OwnerID, req.FarmerID,
		date, session, req.Liters, req.FatPercent, req.RatePerLiter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid milk session", err)
		return
	}

	if err := h.Store.AddMilkSession(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add milk session", err)
		return
	}

	metrics.IncMilkSessionRecorded()
	writeJSON(w, http.StatusCreated, toMilkSessionDTO(m))
}

// ListMilkSessions filters logs by owner, farmer, exact date, month,
// session, or month section.
// GET /api/milk?owner_id=&farmer_id=&date=&month=&session=&section=
func (h *Handler) ListMilkSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := coop.MilkFilter{
		OwnerID:  q.Get("owner_id"),
		FarmerID: q.Get("farmer_id"),
	}

	if v := q.Get("date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
			return
		}
		filter.Date = &d
	}
	if v := q.Get("month"); v != "" {
		m, err := time.Parse("2006-01", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM", err)
			return
		}
		filter.Month = &m
	}
	if v := q.Get("session"); v != "" && v != "All" {
		session, err := coop.ParseSession(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid session", err)
			return
		}
		filter.Session = session
	}
	if v := q.Get("section"); v != "" {
		section, err := coop.ParseSection(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid section", err)
			return
		}
		filter.Section = section
	}

	sessions, err := h.Store.FilterMilkSessions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list milk sessions", err)
		return
	}

	dtos := make([]MilkSessionDTO, 0, len(sessions))
	for _, m := range sessions {
		dtos = append(dtos, toMilkSessionDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteMilkSession removes one log the owner recorded.
// DELETE /api/milk/{id}?owner_id=
func (h *Handler) DeleteMilkSession(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "id")
	ownerID := r.URL.Query().Get("owner_id")

	deleted, err := h.Store.DeleteMilkSession(r.Context(), ownerID, logID)
	if err != nil {
		if errors.Is(err, coop.ErrMilkLogNotFound) {
			writeError(w, http.StatusNotFound, "Milk log not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete milk session", err)
		return
	}
	writeJSON(w, http.StatusOK, toMilkSessionDTO(*deleted))
}

// =============================================================================
// FEED HANDLERS
// =============================================================================

// AddFeedPurchase records a feed credit against a farmer. Feed is
// farmer-global: any owner's deduction draws on the same pool.
// POST /api/feed
func (h *Handler) AddFeedPurchase(w http.ResponseWriter, r *http.Request) {
	var req AddFeedPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}

	purchase := coop.FeedPurchase{
		ID:       uuid.NewString(),
		FarmerID: req.FarmerID,
		Date:     date,
		Quantity: req.Quantity,
		Price:    req.Price,
	}
	if err := purchase.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid feed purchase", err)
		return
	}

	if err := h.Store.AddFeedPurchase(r.Context(), purchase); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add feed purchase", err)
		return
	}

	metrics.IncFeedPurchaseRecorded()
	writeJSON(w, http.StatusCreated, toFeedPurchaseDTO(purchase))
}

// ListFeedPurchases returns purchases, optionally for one farmer.
// GET /api/feed?farmer_id=
func (h *Handler) ListFeedPurchases(w http.ResponseWriter, r *http.Request) {
	var (
		purchases []coop.FeedPurchase
		err       error
	)
	if farmerID := r.URL.Query().Get("farmer_id"); farmerID != "" {
		purchases, err = h.Store.FeedPurchasesByFarmer(r.Context(), farmerID)
	} else {
		purchases, err = h.Store.ListFeedPurchases(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list feed purchases", err)
		return
	}

	dtos := make([]FeedPurchaseDTO, 0, len(purchases))
	for _, p := range purchases {
		dtos = append(dtos, toFeedPurchaseDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateFeedPurchase edits a purchase in place.
// PUT /api/feed/{id}
func (h *Handler) UpdateFeedPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateFeedPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	if req.Quantity.IsNegative() || req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid feed purchase", coop.ErrInvalidQuantity)
		return
	}

	purchase := coop.FeedPurchase{
		ID:       id,
		Date:     date,
		Quantity: req.Quantity,
		Price:    req.Price,
	}
	if err := h.Store.UpdateFeedPurchase(r.Context(), purchase); err != nil {
		if errors.Is(err, coop.ErrFeedPurchaseNotFound) {
			writeError(w, http.StatusNotFound, "Feed purchase not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update feed purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteFeedPurchase removes a purchase.
// DELETE /api/feed/{id}
func (h *Handler) DeleteFeedPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeleteFeedPurchase(r.Context(), id); err != nil {
		if errors.Is(err, coop.ErrFeedPurchaseNotFound) {
			writeError(w, http.StatusNotFound, "Feed purchase not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete feed purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// BILLING HANDLERS
// =============================================================================

// PreviewBill returns the dry-run settlement for a period. Nothing is
// written; calling it twice returns the same result.
// POST /api/billing/preview
func (h *Handler) PreviewBill(w http.ResponseWriter, r *http.Request) {
	var req PreviewBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, end, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	preview, err := h.Engine.PreviewBill(r.Context(), req.OwnerID, req.FarmerID, start, end)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillPreviewDTO(preview))
}

// GenerateBill settles a cycle and persists the bill.
// POST /api/billing/generate
func (h *Handler) GenerateBill(w http.ResponseWriter, r *http.Request) {
	var req GenerateBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, end, err := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	bill, err := h.Engine.GenerateBill(r.Context(), billing.GenerateInput{
		OwnerID:       req.OwnerID,
		FarmerID:      req.FarmerID,
		Start:         start,
		End:           end,
		FeedDeduction: req.FeedDeduction,
		ActualPaid:    req.ActualPaid,
	})
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillDTO(*bill))
}

// GetBalance reports a farmer's running carry-forward.
// GET /api/billing/balance?farmer_id=
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	farmerID := r.URL.Query().Get("farmer_id")
	if farmerID == "" {
		writeError(w, http.StatusBadRequest, "farmer_id is required", nil)
		return
	}

	carry, err := h.Engine.CarryForward(r.Context(), farmerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{FarmerID: farmerID, CarryForward: carry})
}

// GetBillHistory returns a farmer's bills, newest first.
// GET /api/billing/history?farmer_id=
func (h *Handler) GetBillHistory(w http.ResponseWriter, r *http.Request) {
	farmerID := r.URL.Query().Get("farmer_id")
	if farmerID == "" {
		writeError(w, http.StatusBadRequest, "farmer_id is required", nil)
		return
	}

	bills, err := h.Store.BillsByFarmer(r.Context(), farmerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bills", err)
		return
	}

	dtos := make([]BillDTO, 0, len(bills))
	for _, b := range bills {
		dtos = append(dtos, toBillDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdatePayment corrects the paid amount on an existing bill.
// PUT /api/billing/payment/{id}
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	billID := chi.URLParam(r, "id")

	var req UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	bill, err := h.Engine.UpdatePayment(r.Context(), billID, req.ActualPaid)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(*bill))
}

// GetBill returns one bill by id.
// GET /api/billing/{id}
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	billID := chi.URLParam(r, "id")

	bill, err := h.Store.BillByID(r.Context(), billID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(*bill))
}

// DeleteBill removes a bill record. The farmer's running carry-forward
// is not rewound.
// DELETE /api/billing/{id}
func (h *Handler) DeleteBill(w http.ResponseWriter, r *http.Request) {
	billID := chi.URLParam(r, "id")

	if err := h.Store.DeleteBill(r.Context(), billID); err != nil {
		writeBillingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health is a liveness probe.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePeriod(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return s, e, nil
}

// writeBillingError maps engine errors onto HTTP statuses. A rejected
// fractional payment carries the floor/ceil suggestions.
func writeBillingError(w http.ResponseWriter, err error) {
	var roundErr *billing.RoundingError
	if errors.As(err, &roundErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:          "Paid amount must be a whole number or the exact net payable",
			Details:        err.Error(),
			SuggestedFloor: &roundErr.Floor,
			SuggestedCeil:  &roundErr.Ceil,
		})
		return
	}
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
