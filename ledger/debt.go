// Package ledger derives a client's balance from their transaction events.
//
// Balance is never stored: it is always recomputed by folding the ordered
// event log (sales increase debt, payments decrease it). Overpayment rolls
// into a favor balance that offsets future sales. Everything here is a pure
// function of its input; nothing touches storage or the network.
package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tiendafacil/ledger_backend/models"
)

// AnnotatedEvent is an event with the balance after it was applied.
type AnnotatedEvent struct {
	models.TransactionEvent
	RunningTotal decimal.Decimal `json:"runningTotal"`
}

// DebtCalculation is the derived view of one client's ledger.
// TotalDebt and FavorBalance are mutually exclusive: at most one is positive.
type DebtCalculation struct {
	TotalDebt         decimal.Decimal  `json:"totalDebt"`
	FavorBalance      decimal.Decimal  `json:"favorBalance"`
	Events            []AnnotatedEvent `json:"events"`
	ZeroBalancePoints []int            `json:"zeroBalancePoints"`
}

// CalculateClientDebt folds a client's events into a running balance.
//
// Soft-deleted events are skipped. Events are processed in ascending fecha;
// ties break on creation time, then on input order (stable sort). An index
// is a zero-balance point when the running total lands on zero, within the
// shared money tolerance.
func CalculateClientDebt(events []models.TransactionEvent) DebtCalculation {
	ordered := make([]models.TransactionEvent, 0, len(events))
	for _, e := range events {
		if e.Borrado {
			continue
		}
		ordered = append(ordered, e)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Fecha.Equal(ordered[j].Fecha) {
			return ordered[i].Fecha.Before(ordered[j].Fecha)
		}
		return ordered[i].Creado.Before(ordered[j].Creado)
	})

	calc := DebtCalculation{
		TotalDebt:    decimal.Zero,
		FavorBalance: decimal.Zero,
		Events:       make([]AnnotatedEvent, 0, len(ordered)),
	}

	running := decimal.Zero
	for i, e := range ordered {
		running = running.Add(e.SignedAmount())
		calc.Events = append(calc.Events, AnnotatedEvent{
			TransactionEvent: e,
			RunningTotal:     running,
		})
		if running.Abs().LessThanOrEqual(models.TotalTolerance) {
			calc.ZeroBalancePoints = append(calc.ZeroBalancePoints, i)
		}
	}

	if running.IsPositive() {
		calc.TotalDebt = running
	} else if running.IsNegative() {
		calc.FavorBalance = running.Neg()
	}
	return calc
}

// PaymentSplit partitions a payment into the part that settles debt and the
// part that becomes favor credit. DebtPayment + FavorPayment always equals
// the original payment amount.
type PaymentSplit struct {
	DebtPayment        decimal.Decimal `json:"debtPayment"`
	FavorPayment       decimal.Decimal `json:"favorPayment"`
	IsOverpayment      bool            `json:"isOverpayment"`
	ZeroBalanceReached bool            `json:"zeroBalanceReached"`
}

// SplitPayment applies a payment against the current debt.
//
// IsOverpayment is true whenever the payment exceeds the debt, including a
// payment against a zero balance. ZeroBalanceReached only fires when there
// was debt to settle.
func SplitPayment(currentDebt, paymentAmount decimal.Decimal) PaymentSplit {
	debtPayment := decimal.Min(currentDebt, paymentAmount)
	if debtPayment.IsNegative() {
		debtPayment = decimal.Zero
	}
	favorPayment := paymentAmount.Sub(currentDebt)
	if favorPayment.IsNegative() {
		favorPayment = decimal.Zero
	}
	return PaymentSplit{
		DebtPayment:        debtPayment,
		FavorPayment:       favorPayment,
		IsOverpayment:      paymentAmount.GreaterThan(currentDebt),
		ZeroBalanceReached: currentDebt.IsPositive() && debtPayment.Equal(currentDebt),
	}
}

// Display event kinds produced by ApplyPaymentWithVisualization.
const (
	DisplayPayment       DisplayKind = "payment"
	DisplayZeroSeparator DisplayKind = "zero-separator"
	DisplayFavor         DisplayKind = "favor"
)

type DisplayKind string

// DisplayEvent is a synthetic row for rendering a payment in the ledger
// view. Never persisted.
type DisplayEvent struct {
	Kind   DisplayKind     `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// ApplyPaymentWithVisualization expands one payment into the 1-3 rows the
// ledger view renders: the payment itself, a zero separator when the debt is
// fully settled, and a favor credit row when strictly overpaid.
func ApplyPaymentWithVisualization(currentDebt, paymentAmount decimal.Decimal) []DisplayEvent {
	split := SplitPayment(currentDebt, paymentAmount)

	out := []DisplayEvent{{Kind: DisplayPayment, Amount: paymentAmount}}
	if paymentAmount.GreaterThanOrEqual(currentDebt) {
		out = append(out, DisplayEvent{Kind: DisplayZeroSeparator, Amount: decimal.Zero})
	}
	if split.IsOverpayment {
		out = append(out, DisplayEvent{Kind: DisplayFavor, Amount: split.FavorPayment})
	}
	return out
}

// DebtImpact previews what applying one event would do to a client's debt.
type DebtImpact struct {
	NewDebt            decimal.Decimal `json:"newDebt"`
	DebtChange         decimal.Decimal `json:"debtChange"`
	ReachesZero        bool            `json:"reachesZero"`
	CreatesOverpayment bool            `json:"createsOverpayment"`
}

// CalculateDebtImpact previews an event before it is saved. NewDebt is
// clamped at zero for display; the overpayment rule matches SplitPayment
// (any payment above the current debt is an overpayment).
func CalculateDebtImpact(currentDebt decimal.Decimal, event models.TransactionEvent) DebtImpact {
	switch event.Tipo {
	case models.EventTypePago:
		change := event.MontoPago.Neg()
		newDebt := currentDebt.Sub(event.MontoPago)
		reachesZero := currentDebt.IsPositive() && newDebt.Abs().LessThanOrEqual(models.TotalTolerance)
		if newDebt.IsNegative() {
			newDebt = decimal.Zero
		}
		return DebtImpact{
			NewDebt:            newDebt,
			DebtChange:         change,
			ReachesZero:        reachesZero,
			CreatesOverpayment: event.MontoPago.GreaterThan(currentDebt),
		}
	default:
		return DebtImpact{
			NewDebt:    currentDebt.Add(event.TotalVenta),
			DebtChange: event.TotalVenta,
		}
	}
}

// ConsistencyReport is the outcome of auditing an event log. Problems are
// reported, never thrown: a bad entry is a data-integrity signal for
// diagnostics, not a reason to refuse the balance.
type ConsistencyReport struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// ValidateTransactionConsistency audits a client's event log: it re-derives
// every sale total, surfaces malformed events, and walks the chronological
// fold flagging any point where the balance would go negative (a payment
// exceeding all prior debt).
func ValidateTransactionConsistency(events []models.TransactionEvent) ConsistencyReport {
	report := ConsistencyReport{IsValid: true}

	calc := CalculateClientDebt(events)
	for i, ae := range calc.Events {
		for _, msg := range ae.Validate() {
			report.Errors = append(report.Errors, fmt.Sprintf("event %d (%s): %s", i, ae.ID, msg))
		}
		if ae.RunningTotal.LessThan(models.TotalTolerance.Neg()) {
			report.Errors = append(report.Errors, fmt.Sprintf("event %d (%s): Negative debt detected", i, ae.ID))
		}
	}

	report.IsValid = len(report.Errors) == 0
	return report
}
