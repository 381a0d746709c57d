/*
handlers.go - HTTP API handlers for the payroll console

PURPOSE:
  Exposes attendance, cash advances and payroll runs via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the engine
  packages.

ENDPOINTS:
  Employees:
    GET    /api/employees                      Active roster
    GET    /api/employees/{id}                 Employee details

  Attendance:
    POST   /api/attendance/clock-in            Clock in (classified on/late)
    POST   /api/attendance/clock-out           Clock out
    POST   /api/attendance/half-day            Record a half day
    POST   /api/attendance/close-day           Mark missing employees absent
                                               (no-op outside the workweek)
    GET    /api/attendance/roster?date=        Daily roster
    GET    /api/dashboard?date=                Dashboard counts

  Cash advances:
    POST   /api/advances                       Submit request
    GET    /api/advances?employee_id=&status=  List requests
    POST   /api/advances/{id}/approve|reject|pay
    DELETE /api/advances/{id}                  Delete pending request

  Payroll:
    GET    /api/payroll/payslips/{employee_id}?cycle=YYYY-MM
    POST   /api/payroll/runs                   Start run
    POST   /api/payroll/runs/{id}/compute
    POST   /api/payroll/runs/{id}/commit
    GET    /api/payroll/runs, /api/payroll/runs/{id}

  Activity:
    GET    /api/activity?limit=

  Health:
    GET    /healthz                            Store ping

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing actor on a mutating route
  - 404: Resource not found
  - 409: Invalid transition or operation, duplicate record
  - 422: Negative net pay
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/balibad/payroll-engine/payroll"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ActivityFeed lists recent dashboard activity, newest first.
type ActivityFeed interface {
	Activities(ctx context.Context, limit int) ([]hr.Activity, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the engine components the handlers call.
type Services struct {
	Directory  hr.EmployeeDirectory
	Attendance *attendance.Service
	Advances   *advance.Ledger
	Payroll    *payroll.RunService
	Feed       ActivityFeed
	DB         Pinger // optional, checked by /healthz
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services
	Location *time.Location
	Now      func() time.Time
	Logger   *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a handler. Times without an offset are read in loc.
func NewHandler(svc Services, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = attendance.Manila
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Services: svc,
		Location: loc,
		Now:      time.Now,
		Logger:   logger,
		validate: v,
	}
}

func (h *Handler) today() hr.Date {
	return hr.DateOf(h.Now().In(h.Location))
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Directory.ActiveEmployees(r.Context())
	if err != nil {
		h.writeEngineError(w, "failed to list employees", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTOs(employees))
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Directory.Employee(r.Context(), hr.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, "failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// Health answers 200 while the store responds and 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			h.Logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ATTENDANCE ENDPOINTS
// =============================================================================

func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if !h.decode(w, r, &req) {
		return
	}
	at, ok := h.parseAt(w, req.At)
	if !ok {
		return
	}
	rec, err := h.Attendance.ClockIn(r.Context(), hr.EmployeeID(req.EmployeeID), at)
	if err != nil {
		h.writeEngineError(w, "failed to clock in", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if !h.decode(w, r, &req) {
		return
	}
	at, ok := h.parseAt(w, req.At)
	if !ok {
		return
	}
	rec, err := h.Attendance.ClockOut(r.Context(), hr.EmployeeID(req.EmployeeID), at)
	if err != nil {
		h.writeEngineError(w, "failed to clock out", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

func (h *Handler) CloseDay(w http.ResponseWriter, r *http.Request) {
	var req CloseDayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := hr.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	n, err := h.Attendance.CloseDay(r.Context(), date)
	if err != nil {
		h.writeEngineError(w, "failed to close day", err)
		return
	}
	writeJSON(w, http.StatusOK, CloseDayDTO{
		Date:          date,
		MarkedAbsent:  n,
		NonWorkingDay: !h.Attendance.Workweek.Works(date),
	})
}

func (h *Handler) MarkHalfDay(w http.ResponseWriter, r *http.Request) {
	var req HalfDayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := hr.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	rec, err := h.Attendance.MarkHalfDay(r.Context(), hr.EmployeeID(req.EmployeeID), date)
	if err != nil {
		h.writeEngineError(w, "failed to mark half day", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

func (h *Handler) GetRoster(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	roster, err := h.Attendance.DailyRoster(r.Context(), date)
	if err != nil {
		h.writeEngineError(w, "failed to build roster", err)
		return
	}
	writeJSON(w, http.StatusOK, toRosterDTO(roster))
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	summary, err := h.Attendance.Summary(r.Context(), date)
	if err != nil {
		h.writeEngineError(w, "failed to build dashboard", err)
		return
	}
	pending, err := h.Advances.PendingCount(r.Context())
	if err != nil {
		h.writeEngineError(w, "failed to count pending advances", err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		Date:            summary.Date,
		ActiveStaff:     summary.ActiveStaff,
		OnTime:          summary.OnTime,
		Late:            summary.Late,
		Absent:          summary.Absent,
		HalfDay:         summary.HalfDay,
		PendingAdvances: pending,
	})
}

// =============================================================================
// CASH ADVANCE ENDPOINTS
// =============================================================================

func (h *Handler) SubmitAdvance(w http.ResponseWriter, r *http.Request) {
	var req SubmitAdvanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := hr.ParseMoney(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	date, err := hr.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	created, err := h.Advances.Submit(r.Context(), hr.EmployeeID(req.EmployeeID), amount, req.Purpose, date)
	if err != nil {
		h.writeEngineError(w, "failed to submit cash advance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdvanceDTO(created))
}

func (h *Handler) ListAdvances(w http.ResponseWriter, r *http.Request) {
	filter := advance.Filter{EmployeeID: hr.EmployeeID(r.URL.Query().Get("employee_id"))}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := advance.ParseStatus(part)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid status filter", err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	requests, err := h.Advances.List(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, "failed to list cash advances", err)
		return
	}
	out := make([]AdvanceDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, toAdvanceDTO(req))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetAdvance(w http.ResponseWriter, r *http.Request) {
	req, err := h.Advances.Get(r.Context(), advance.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, "failed to get cash advance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvanceDTO(req))
}

func (h *Handler) ApproveAdvance(w http.ResponseWriter, r *http.Request) {
	h.transitionAdvance(w, r, h.Advances.Approve, "failed to approve cash advance")
}

func (h *Handler) RejectAdvance(w http.ResponseWriter, r *http.Request) {
	h.transitionAdvance(w, r, h.Advances.Reject, "failed to reject cash advance")
}

func (h *Handler) PayAdvance(w http.ResponseWriter, r *http.Request) {
	h.transitionAdvance(w, r, h.Advances.MarkPaid, "failed to mark cash advance paid")
}

func (h *Handler) transitionAdvance(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, advance.RequestID) (advance.Request, error),
	message string,
) {
	updated, err := fn(r.Context(), advance.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvanceDTO(updated))
}

func (h *Handler) DeleteAdvance(w http.ResponseWriter, r *http.Request) {
	if err := h.Advances.Delete(r.Context(), advance.RequestID(chi.URLParam(r, "id"))); err != nil {
		h.writeEngineError(w, "failed to delete cash advance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYROLL ENDPOINTS
// =============================================================================

func (h *Handler) GetPayslip(w http.ResponseWriter, r *http.Request) {
	cycle := payroll.CycleOf(h.today())
	if raw := r.URL.Query().Get("cycle"); raw != "" {
		parsed, err := payroll.ParseCycle(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cycle", err)
			return
		}
		cycle = parsed
	}
	line, err := h.Payroll.Payslip(r.Context(), hr.EmployeeID(chi.URLParam(r, "employee_id")), cycle)
	if err != nil {
		h.writeEngineError(w, "failed to compute payslip", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayslipDTO(line))
}

func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if !h.decode(w, r, &req) {
		return
	}
	cycle, err := payroll.ParseCycle(req.Cycle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cycle", err)
		return
	}
	run, err := h.Payroll.Start(r.Context(), cycle)
	if err != nil {
		h.writeEngineError(w, "failed to start payroll run", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(run))
}

func (h *Handler) ComputeRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Payroll.Compute(r.Context(), payroll.RunID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, "failed to compute payroll run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

func (h *Handler) CommitRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Payroll.Commit(r.Context(), payroll.RunID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, "failed to commit payroll run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Payroll.List(r.Context())
	if err != nil {
		h.writeEngineError(w, "failed to list payroll runs", err)
		return
	}
	out := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Payroll.Get(r.Context(), payroll.RunID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, "failed to get payroll run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// =============================================================================
// ACTIVITY ENDPOINTS
// =============================================================================

func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}
	if h.Feed == nil {
		writeJSON(w, http.StatusOK, []ActivityDTO{})
		return
	}
	items, err := h.Feed.Activities(r.Context(), limit)
	if err != nil {
		h.writeEngineError(w, "failed to list activity", err)
		return
	}
	out := make([]ActivityDTO, 0, len(items))
	for _, a := range items {
		out = append(out, toActivityDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation failed",
				Code:    "validation_failed",
				Details: details,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

func (h *Handler) parseAt(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return h.Now(), true
	}
	at, err := attendance.ParseTimestamp(raw, h.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timestamp", err)
		return time.Time{}, false
	}
	return at, true
}

func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request) (hr.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.today(), true
	}
	d, err := hr.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return hr.Date{}, false
	}
	return d, true
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, hr.ErrMissingActor):
		return http.StatusUnauthorized
	case errors.Is(err, hr.ErrNegativeNetPay):
		return http.StatusUnprocessableEntity
	case hr.IsNotFound(err):
		return http.StatusNotFound
	case hr.IsConflict(err), errors.Is(err, hr.ErrInvalidOperation):
		return http.StatusConflict
	case hr.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
		writeJSON(w, status, ErrorResponse{Error: message, Code: hr.Code(err)})
		return
	}

	resp := ErrorResponse{Error: message, Code: hr.Code(err), Details: err.Error()}
	var neg *hr.NegativeNetPayError
	if errors.As(err, &neg) {
		resp.Details = map[string]string{
			"employee_id": string(neg.EmployeeID),
			"cycle_id":    neg.CycleID,
			"gross":       neg.Gross.String(),
			"deductions":  neg.Deductions.String(),
			"net":         neg.Net.String(),
		}
	}
	writeJSON(w, status, resp)
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
