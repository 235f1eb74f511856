package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// CreateRequest holds the input for creating a coupon.
type CreateRequest struct {
	Details Details
	// Active defaults to true when nil.
	Active    *bool
	ExpiresAt *time.Time
}

// UpdateRequest holds a partial coupon update. Nil fields are left unchanged.
type UpdateRequest struct {
	Type *Type
	// Details is raw JSON, parsed under the new type if Type is set or the
	// stored type otherwise.
	Details   []byte
	Active    *bool
	ExpiresAt *time.Time
}

// Applicable is one entry of an applicability scan.
type Applicable struct {
	CouponID int64
	Type     Type
	Discount decimal.Decimal
}

// ApplyResult holds the output of a successful apply.
type ApplyResult struct {
	Coupon        *Coupon
	Result        Result
	ApplicationID uuid.UUID
}

// Service manages coupon records and evaluates them against carts.
type Service struct {
	coupons      Repository
	applications ApplicationRepository
	events       Publisher
	tracer       trace.Tracer
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher. Events are dropped by default.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTracerProvider enables tracing of cart evaluations.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("github.com/xenking/kart-coupons/coupon") }
}

// WithClock overrides the time source used for expiration checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a coupon Service backed by the given repositories.
func NewService(coupons Repository, applications ApplicationRepository, opts ...Option) *Service {
	s := &Service{
		coupons:      coupons,
		applications: applications,
		events:       nopPublisher{},
		tracer:       noop.NewTracerProvider().Tracer(""),
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates and stores a new coupon.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	if err := Validate(req.Details); err != nil {
		return nil, err
	}
	c := &Coupon{
		Type:      req.Details.Type(),
		Details:   req.Details,
		Active:    true,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: s.now(),
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	if err := s.coupons.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	s.publish(ctx, Event{Kind: EventCreated, CouponID: c.ID, Type: c.Type})
	return c, nil
}

// Get returns the coupon with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Coupon, error) {
	return s.coupons.Get(ctx, id)
}

// List returns all coupons.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.coupons.List(ctx)
}

// Update applies a partial update to an existing coupon.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Coupon, error) {
	c, err := s.coupons.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	typ := c.Type
	if req.Type != nil {
		typ = *req.Type
	}
	switch {
	case req.Details != nil:
		d, err := ParseDetails(typ, req.Details)
		if err != nil {
			return nil, err
		}
		c.Type, c.Details = typ, d
	case typ != c.Type:
		return nil, &DetailsError{Fields: map[string]string{
			"details": "must be provided when changing the coupon type",
		}}
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	if req.ExpiresAt != nil {
		c.ExpiresAt = req.ExpiresAt
	}
	now := s.now()
	c.UpdatedAt = &now

	if err := s.coupons.Update(ctx, c); err != nil {
		return nil, errors.Wrapf(err, "update coupon %d", id)
	}
	s.publish(ctx, Event{Kind: EventUpdated, CouponID: c.ID, Type: c.Type})
	return c, nil
}

// Delete removes a coupon.
func (s *Service) Delete(ctx context.Context, id int64) error {
	c, err := s.coupons.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.coupons.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete coupon %d", id)
	}
	s.publish(ctx, Event{Kind: EventDeleted, CouponID: id, Type: c.Type})
	return nil
}

// Applicable scans active, unexpired coupons and returns those that give the
// cart a positive discount. Coupons with broken stored details are skipped.
func (s *Service) Applicable(ctx context.Context, items []Item) ([]Applicable, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Applicable",
		trace.WithAttributes(attribute.Int("cart.items", len(items))),
	)
	defer span.End()

	coupons, err := s.coupons.ListActive(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "list active coupons")
	}

	lg := zctx.From(ctx)
	now := s.now()
	out := make([]Applicable, 0, len(coupons))
	for _, c := range coupons {
		if c.Expired(now) {
			continue
		}
		ok, err := IsApplicable(items, c.Details)
		if err != nil {
			lg.Warn("Skipping unusable coupon", zap.Int64("coupon_id", c.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		res, err := Compute(items, c.Details)
		if err != nil {
			lg.Warn("Skipping unusable coupon", zap.Int64("coupon_id", c.ID), zap.Error(err))
			continue
		}
		if !res.TotalDiscount.IsPositive() {
			continue
		}
		out = append(out, Applicable{CouponID: c.ID, Type: c.Type, Discount: res.TotalDiscount})
	}
	span.SetAttributes(attribute.Int("coupons.applicable", len(out)))
	return out, nil
}

// Apply computes the discount of one coupon for the cart and records the
// application.
func (s *Service) Apply(ctx context.Context, id int64, items []Item) (*ApplyResult, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Apply",
		trace.WithAttributes(attribute.Int64("coupon.id", id)),
	)
	defer span.End()

	c, err := s.coupons.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("coupon.type", string(c.Type)))

	now := s.now()
	switch {
	case !c.Active:
		return nil, ErrInactive
	case c.Expired(now):
		return nil, ErrExpired
	}

	ok, err := IsApplicable(items, c.Details)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !ok {
		return nil, ErrNotApplicable
	}
	res, err := Compute(items, c.Details)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	app := &Application{
		ID:            uuid.New(),
		CouponID:      c.ID,
		Type:          c.Type,
		Subtotal:      res.Subtotal,
		TotalDiscount: res.TotalDiscount,
		FinalTotal:    res.FinalTotal,
		Items:         res.Items,
		CreatedAt:     now,
	}
	if err := s.applications.Create(ctx, app); err != nil {
		return nil, errors.Wrap(err, "record application")
	}
	s.publish(ctx, Event{
		Kind:          EventApplied,
		CouponID:      c.ID,
		Type:          c.Type,
		TotalDiscount: res.TotalDiscount,
	})

	return &ApplyResult{Coupon: c, Result: res, ApplicationID: app.ID}, nil
}

func (s *Service) publish(ctx context.Context, e Event) {
	e.ID = uuid.New()
	e.OccurredAt = s.now()
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish coupon event",
			zap.String("kind", string(e.Kind)),
			zap.Int64("coupon_id", e.CouponID),
			zap.Error(err),
		)
	}
}
