package payment

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// CreatePaymentRequest is the input to CreatePayment (spec §4.4).
type CreatePaymentRequest struct {
	UserID         string
	OrderID        string
	Provider       Provider
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// payableOrderStatuses is the allow-list from spec §4.4 step 1.
var payableOrderStatuses = map[string]bool{
	"created":         true,
	"processing":      true,
	"pending":         true,
	"pending_payment": true,
}

const amountMismatchToleranceMinorUnits = 1

// CreatePayment implements spec §4.4's CreatePayment use case.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*SessionResult, error) {
	if req.IdempotencyKey == "" {
		return nil, NewError(KindMissingIdempotency, "create payment requires an idempotency key")
	}
	return WithIdempotency(ctx, s.Idempotent, s.Logger, req.IdempotencyKey, func(ctx context.Context) (*SessionResult, error) {
		return s.createPayment(ctx, req)
	})
}

func (s *Service) createPayment(ctx context.Context, req CreatePaymentRequest) (*SessionResult, error) {
	order, err := withDeadline(ctx, 10*time.Second, func(ctx context.Context) (*OrderInfo, error) {
		return withRetry(ctx, 2, func(ctx context.Context) (*OrderInfo, error) {
			return s.Orders.GetOrderByID(ctx, req.OrderID, req.UserID)
		})
	})
	if err != nil {
		return nil, Wrap(KindTimeout, err, "create payment: fetch order %s", req.OrderID)
	}
	if !payableOrderStatuses[order.Status] {
		return nil, NewError(KindInvalidOrderState, "order %s has non-payable status %s", req.OrderID, order.Status)
	}

	courseIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		courseIDs = append(courseIDs, item.CourseID)
	}
	courses, err := withDeadline(ctx, 10*time.Second, func(ctx context.Context) (map[string]CourseInfo, error) {
		return withRetry(ctx, 2, func(ctx context.Context) (map[string]CourseInfo, error) {
			return s.Courses.GetCoursesByIDs(ctx, courseIDs)
		})
	})
	if err != nil {
		return nil, Wrap(KindTimeout, err, "create payment: fetch course metadata")
	}

	adapter, err := s.adapter(req.Provider)
	if err != nil {
		return nil, err
	}

	targetCurrency := order.Amount.Currency
	fxRate := 1.0
	fxTimestamp := time.Now().UTC()
	convertedTotal := order.Amount.Amount

	if !adapter.IsCurrencySupported(order.Amount.Currency) {
		rate, asOf, err := s.Exchange.GetRate(ctx, order.Amount.Currency, "USD")
		if err != nil {
			return nil, Wrap(KindCurrencyConversion, err, "create payment: fetch FX rate %s->USD", order.Amount.Currency)
		}
		fxRate = rate
		fxTimestamp = asOf
		targetCurrency = "USD"
		convertedTotal = convertMinorUnits(order.Amount.Amount, rate)
	}

	lineItems := make([]LineItem, 0, len(order.Items))
	var itemSum int64
	for _, item := range order.Items {
		unitAmount := item.Price
		if targetCurrency != item.Currency {
			unitAmount = convertMinorUnits(item.Price, fxRate)
		}
		course := courses[item.CourseID]
		lineItems = append(lineItems, LineItem{
			Name:       course.Title,
			Quantity:   1,
			UnitAmount: Money{Amount: unitAmount, Currency: targetCurrency},
			ImageURL:   course.Thumbnail,
		})
		itemSum += unitAmount
	}
	if absDiff(itemSum, convertedTotal) > amountMismatchToleranceMinorUnits {
		return nil, NewError(KindAmountMismatch, "create payment: line items sum %d does not match converted total %d", itemSum, convertedTotal)
	}

	existing, err := s.Store.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, Wrap(KindInternal, err, "create payment: lookup by idempotency key")
	}

	now := time.Now().UTC()
	var p *Payment
	if existing != nil {
		p = existing
	} else {
		p = &Payment{
			ID:             newID(),
			UserID:         req.UserID,
			OrderID:        req.OrderID,
			Amount:         Money{Amount: order.Amount.Amount, Currency: order.Amount.Currency},
			IdempotencyKey: req.IdempotencyKey,
			Status:         StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
			ExpiresAt:      now.Add(s.PaymentTTL),
		}
	}

	session, err := withRetry(ctx, 2, func(ctx context.Context) (*SessionResult, error) {
		return adapter.CreateSession(ctx, CreateSessionRequest{
			UserID:         req.UserID,
			OrderID:        req.OrderID,
			IdempotencyKey: req.IdempotencyKey,
			Amount:         Money{Amount: convertedTotal, Currency: targetCurrency},
			LineItems:      lineItems,
			SuccessURL:     req.SuccessURL,
			CancelURL:      req.CancelURL,
			Description:    "course purchase " + req.OrderID,
			CustomerEmail:  "",
		})
	})
	if err != nil {
		return nil, Wrap(KindInternal, err, "create payment: provider createSession")
	}

	if absDiff(session.Amount.Amount, convertedTotal) > amountMismatchToleranceMinorUnits ||
		absDiff(session.Amount.Amount, order.Amount.Amount) > amountMismatchToleranceMinorUnits {
		s.Logger.Warn("provider session amount mismatch",
			zap.Int64("session_amount", session.Amount.Amount),
			zap.Int64("converted_total", convertedTotal),
			zap.Int64("order_amount", order.Amount.Amount),
		)
	}

	newSession := ProviderSession{
		ID:              newID(),
		PaymentID:       p.ID,
		Provider:        req.Provider,
		ProviderOrderID: session.ProviderOrderID,
		Amount:          session.Amount,
		FXRate:          fxRate,
		FXTimestamp:     fxTimestamp,
		Status:          SessionCreated,
		Metadata:        session.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	p.Sessions = append(p.Sessions, newSession)
	p.ProviderOrderID = session.ProviderOrderID

	if existing != nil {
		if err := s.Store.UpdatePayment(ctx, p); err != nil {
			return nil, Wrap(KindInternal, err, "create payment: persist reused payment")
		}
	} else {
		if err := s.Store.CreatePayment(ctx, p); err != nil {
			return nil, Wrap(KindInternal, err, "create payment: persist new payment")
		}
	}

	ttl := time.Until(p.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	if err := s.Timeouts.ScheduleTimeout(ctx, p.ID, TimeoutRecord{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		UserID:    p.UserID,
		ExpiresAt: p.ExpiresAt,
	}, ttl); err != nil {
		s.Logger.Error("create payment: failed to schedule timeout", zap.String("payment_id", p.ID), zap.Error(err))
	}

	if err := s.Publisher.PublishInitiated(ctx, OrderPaymentInitiated{
		Source:          "payment-service",
		PaymentID:       p.ID,
		UserID:          p.UserID,
		OrderID:         p.OrderID,
		Provider:        req.Provider,
		ProviderOrderID: p.ProviderOrderID,
		PaymentStatus:   p.Status,
	}); err != nil {
		s.Logger.Error("create payment: failed to publish initiated event", zap.String("payment_id", p.ID), zap.Error(err))
	}

	return session, nil
}

// convertMinorUnits implements spec §4.4's convert(amountSub, rate, 100, 100)
// = round(amountSub/100 * rate * 100): minor -> major -> minor.
func convertMinorUnits(amountMinor int64, rate float64) int64 {
	major := float64(amountMinor) / 100.0
	convertedMajor := major * rate
	return int64(math.Round(convertedMajor * 100.0))
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
