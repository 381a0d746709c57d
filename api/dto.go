/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's value types from the external contract: money is always a
  fixed two-decimal string, dates are YYYY-MM-DD, instants are RFC3339.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry `validate` tags checked by go-playground/validator
  before the handler touches the engine. Business rules (positive amounts,
  state transitions) stay in the engine packages.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/balibad/payroll-engine/payroll"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ClockRequest is the body for clock-in and clock-out. At defaults to now.
type ClockRequest struct {
	EmployeeID string `json:"employee_id" validate:"required,max=64"`
	At         string `json:"at,omitempty"`
}

type CloseDayRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type HalfDayRequest struct {
	EmployeeID string `json:"employee_id" validate:"required,max=64"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
}

type SubmitAdvanceRequest struct {
	EmployeeID string      `json:"employee_id" validate:"required,max=64"`
	Amount     json.Number `json:"amount" validate:"required,numeric"`
	Purpose    string      `json:"purpose" validate:"required,max=500"`
	Date       string      `json:"date" validate:"required,datetime=2006-01-02"`
}

type StartRunRequest struct {
	Cycle string `json:"cycle" validate:"required,datetime=2006-01"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type EmployeeDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AnnualSalary hr.Money `json:"annual_salary"`
	MonthlyGross hr.Money `json:"monthly_gross"`
	Status       string   `json:"status"`
	Branch       string   `json:"branch,omitempty"`
}

type AttendanceRecordDTO struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employee_id"`
	Date       hr.Date    `json:"date"`
	TimeIn     *time.Time `json:"time_in,omitempty"`
	TimeOut    *time.Time `json:"time_out,omitempty"`
	Status     string     `json:"status"`
}

type RosterDTO struct {
	Date    hr.Date       `json:"date"`
	Present []EmployeeDTO `json:"present"`
	Late    []EmployeeDTO `json:"late"`
	Absent  []EmployeeDTO `json:"absent"`
	HalfDay []EmployeeDTO `json:"half_day"`
}

type DashboardDTO struct {
	Date            hr.Date `json:"date"`
	ActiveStaff     int     `json:"active_staff"`
	OnTime          int     `json:"on_time"`
	Late            int     `json:"late"`
	Absent          int     `json:"absent"`
	HalfDay         int     `json:"half_day"`
	PendingAdvances int     `json:"pending_advances"`
}

// CloseDayDTO reports the absences created. NonWorkingDay is set when date
// falls outside the workweek and nothing was closed.
type CloseDayDTO struct {
	Date          hr.Date `json:"date"`
	MarkedAbsent  int     `json:"marked_absent"`
	NonWorkingDay bool    `json:"non_working_day,omitempty"`
}

type TransitionDTO struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
}

type AdvanceDTO struct {
	ID          string          `json:"id"`
	EmployeeID  string          `json:"employee_id"`
	Amount      hr.Money        `json:"amount"`
	Purpose     string          `json:"purpose"`
	RequestDate hr.Date         `json:"request_date"`
	Status      string          `json:"status"`
	History     []TransitionDTO `json:"history"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type PayslipDTO struct {
	EmployeeID       string   `json:"employee_id"`
	CycleID          string   `json:"cycle_id"`
	Gross            hr.Money `json:"gross"`
	AdvanceDeduction hr.Money `json:"advance_deduction"`
	AbsenceDeduction hr.Money `json:"absence_deduction"`
	AbsenceUnits     string   `json:"absence_units"`
	Net              hr.Money `json:"net"`
}

type FailureDTO struct {
	EmployeeID string `json:"employee_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type RunDTO struct {
	ID          string       `json:"id"`
	CycleID     string       `json:"cycle_id"`
	Status      string       `json:"status"`
	Payslips    []PayslipDTO `json:"payslips"`
	Failures    []FailureDTO `json:"failures"`
	TotalNet    hr.Money     `json:"total_net"`
	CreatedBy   string       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ComputedAt  *time.Time   `json:"computed_at,omitempty"`
	CommittedBy string       `json:"committed_by,omitempty"`
	CommittedAt *time.Time   `json:"committed_at,omitempty"`
}

type ActivityDTO struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorName string    `json:"actor_name,omitempty"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	At        time.Time `json:"at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e hr.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           string(e.ID),
		Name:         e.Name,
		AnnualSalary: e.AnnualSalary,
		MonthlyGross: payroll.ComputeGross(e),
		Status:       string(e.Status),
		Branch:       e.Branch,
	}
}

func toEmployeeDTOs(es []hr.Employee) []EmployeeDTO {
	out := make([]EmployeeDTO, 0, len(es))
	for _, e := range es {
		out = append(out, toEmployeeDTO(e))
	}
	return out
}

func toRecordDTO(r attendance.Record) AttendanceRecordDTO {
	dto := AttendanceRecordDTO{
		ID:         string(r.ID),
		EmployeeID: string(r.EmployeeID),
		Date:       r.Date,
		TimeOut:    r.TimeOut,
		Status:     string(r.Status),
	}
	if !r.TimeIn.IsZero() {
		in := r.TimeIn
		dto.TimeIn = &in
	}
	return dto
}

func toRosterDTO(r attendance.Roster) RosterDTO {
	return RosterDTO{
		Date:    r.Date,
		Present: toEmployeeDTOs(r.Present),
		Late:    toEmployeeDTOs(r.Late),
		Absent:  toEmployeeDTOs(r.Absent),
		HalfDay: toEmployeeDTOs(r.HalfDay),
	}
}

func toAdvanceDTO(r advance.Request) AdvanceDTO {
	history := make([]TransitionDTO, 0, len(r.History))
	for _, t := range r.History {
		history = append(history, TransitionDTO{
			From:    string(t.From),
			To:      string(t.To),
			ActorID: t.ActorID,
			At:      t.At,
		})
	}
	return AdvanceDTO{
		ID:          string(r.ID),
		EmployeeID:  string(r.EmployeeID),
		Amount:      r.Amount,
		Purpose:     r.Purpose,
		RequestDate: r.RequestDate,
		Status:      string(r.Status),
		History:     history,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toPayslipDTO(p payroll.PayslipLine) PayslipDTO {
	return PayslipDTO{
		EmployeeID:       string(p.EmployeeID),
		CycleID:          p.CycleID,
		Gross:            p.Gross,
		AdvanceDeduction: p.AdvanceDeduction,
		AbsenceDeduction: p.AbsenceDeduction,
		AbsenceUnits:     p.AbsenceUnits.String(),
		Net:              p.Net,
	}
}

func toRunDTO(r payroll.Run) RunDTO {
	dto := RunDTO{
		ID:          string(r.ID),
		CycleID:     r.CycleID,
		Status:      string(r.Status),
		Payslips:    make([]PayslipDTO, 0, len(r.Payslips)),
		Failures:    make([]FailureDTO, 0, len(r.Failures)),
		TotalNet:    r.TotalNet(),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		CommittedBy: r.CommittedBy,
	}
	for _, p := range r.Payslips {
		dto.Payslips = append(dto.Payslips, toPayslipDTO(p))
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, FailureDTO{EmployeeID: string(f.EmployeeID), Code: f.Code, Message: f.Message})
	}
	if !r.ComputedAt.IsZero() {
		t := r.ComputedAt
		dto.ComputedAt = &t
	}
	if !r.CommittedAt.IsZero() {
		t := r.CommittedAt
		dto.CommittedAt = &t
	}
	return dto
}

func toActivityDTO(a hr.Activity) ActivityDTO {
	return ActivityDTO{
		ID:        a.ID,
		Type:      string(a.Type),
		ActorID:   a.ActorID,
		ActorName: a.ActorName,
		Action:    a.Action,
		Target:    a.Target,
		At:        a.At,
	}
}
