package application

import (
	"context"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/conflict"
	"nexus-promotion/internal/service/promotion/domain/evaluator"
	"nexus-promotion/internal/service/promotion/domain/experiment"
	"nexus-promotion/internal/service/promotion/domain/rule"
)

// 购物车规模的默认上限。单件类策略会把每一行按数量展开，数量必须有界
const (
	defaultMaxCartLines    = 200
	defaultMaxLineQuantity = 1000
)

// PromotionService 定义了优惠服务提供的所有业务用例
type PromotionService struct {
	offers          domain.OfferRepository
	experiments     domain.ExperimentRepository
	store           domain.AssignmentStore
	events          domain.EventLog
	assigner        *experiment.Assigner
	evaluator       *evaluator.Evaluator
	budget          atomic.Pointer[conflict.BudgetOptions]
	maxCartLines    int
	maxLineQuantity int
	tracer          trace.Tracer
	now             func() time.Time
}

// Option 调整 PromotionService 的可选参数
type Option func(*PromotionService)

// WithCartLimits 设置购物车最多行数和单行最大数量，<=0 的值保持默认
func WithCartLimits(maxLines, maxLineQuantity int) Option {
	return func(s *PromotionService) {
		if maxLines > 0 {
			s.maxCartLines = maxLines
		}
		if maxLineQuantity > 0 {
			s.maxLineQuantity = maxLineQuantity
		}
	}
}

// NewPromotionService 创建一个新的优惠服务实例。budget 是默认的全局预算，请求可以覆盖。
func NewPromotionService(
	offers domain.OfferRepository,
	experiments domain.ExperimentRepository,
	store domain.AssignmentStore,
	events domain.EventLog,
	budget conflict.BudgetOptions,
	tracer trace.Tracer,
	opts ...Option,
) *PromotionService {
	s := &PromotionService{
		offers:          offers,
		experiments:     experiments,
		store:           store,
		events:          events,
		assigner:        experiment.NewAssigner(store),
		evaluator:       evaluator.New(rule.NewEngine()),
		maxCartLines:    defaultMaxCartLines,
		maxLineQuantity: defaultMaxLineQuantity,
		tracer:          tracer,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.UpdateBudget(budget)
	return s
}

// UpdateBudget 替换默认预算，配置中心推送变更时调用
func (s *PromotionService) UpdateBudget(budget conflict.BudgetOptions) {
	s.budget.Store(&budget)
}

// EvaluateCart 是核心用例：实验分组 → 过滤优惠 → 评估 → 冲突裁决 → 记录曝光
func (s *PromotionService) EvaluateCart(ctx context.Context, req *EvaluateCartRequest) (*EvaluateCartResponse, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "service.EvaluateCart")
	defer span.End()

	if req == nil || req.Cart == nil {
		evaluationsTotal.WithLabelValues("invalid").Inc()
		return nil, errors.Wrap(domain.ErrInvalidRequest, "cart is required")
	}
	if err := s.validateCart(req.Cart); err != nil {
		evaluationsTotal.WithLabelValues("invalid").Inc()
		span.RecordError(err)
		return nil, err
	}
	evalCtx := s.evalContext(ctx, req.Context)
	identifier := identifierFor(req.User, evalCtx)

	span.SetAttributes(
		attribute.String("cart.id", req.Cart.ID),
		attribute.Int("cart.lines", len(req.Cart.Lines)),
		attribute.String("context.channel", evalCtx.Channel),
		attribute.Bool("user.present", req.User != nil),
	)

	// 1. 并发加载优惠和实验配置
	var (
		offers []*domain.Offer
		exps   []*domain.Experiment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		offers, err = s.offers.ListActiveOffers(gctx, evalCtx.Now)
		return errors.Wrap(err, "failed to load active offers")
	})
	g.Go(func() error {
		var err error
		exps, err = s.experiments.ListRunningExperiments(gctx, evalCtx.Now)
		return errors.Wrap(err, "failed to load running experiments")
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		evaluationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// 2. 实验分组，失败的实验按“不在实验中”处理，不影响评估
	variants, assignments := s.assignAll(ctx, exps, identifier)
	visible := experiment.Gate(offers, exps, variants)
	span.AddEvent("offers gated", trace.WithAttributes(
		attribute.Int("offers.loaded", len(offers)),
		attribute.Int("offers.visible", len(visible)),
	))

	// 3. 评估 + 冲突裁决
	result := s.evaluator.Evaluate(visible, req.Cart, req.User, evalCtx)
	resolution := conflict.Resolve(result.Plans, s.budgetFor(req))

	// 4. 曝光只记录真正出现在结果里的实验优惠
	s.logExposures(ctx, exps, variants, identifier, result)

	s.observe(resolution, start)
	span.SetAttributes(
		attribute.Int("plans.accepted", len(resolution.Accepted)),
		attribute.Int("plans.rejected", len(resolution.Rejected)),
		attribute.Float64("discount.total", resolution.TotalDiscount),
	)
	logger.Ctx(ctx).Info().
		Str("cart_id", req.Cart.ID).
		Int("applicable", len(result.ApplicableOffers)).
		Int("accepted", len(resolution.Accepted)).
		Float64("total_discount", resolution.TotalDiscount).
		Msg("cart evaluated")

	return &EvaluateCartResponse{
		Evaluation:  result,
		Resolution:  resolution,
		Assignments: assignments,
		FinalTotal:  math.Max(0, math.Round((req.Cart.SubtotalAmount()-resolution.TotalDiscount)*100)/100),
	}, nil
}

// AssignVariant 返回标识在实验中的分组，第一次调用时写入分配记录
func (s *PromotionService) AssignVariant(ctx context.Context, req *AssignVariantRequest) (*AssignVariantResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.AssignVariant")
	defer span.End()

	if req == nil || req.ExperimentID == "" || req.Identifier == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "experiment_id and identifier are required")
	}
	span.SetAttributes(attribute.String("experiment.id", req.ExperimentID))

	exp, err := s.experiments.FindExperiment(ctx, req.ExperimentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp := &AssignVariantResponse{ExperimentID: exp.ID}
	if !exp.IsRunning(s.now()) {
		logger.Ctx(ctx).Info().Str("experiment_id", exp.ID).Msg("experiment is not running, no assignment made")
		return resp, nil
	}

	assignment, created, err := s.assigner.Resolve(ctx, exp, req.Identifier)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "failed to assign variant for experiment %s", exp.ID)
	}
	if assignment != nil {
		assignmentsTotal.WithLabelValues(exp.ID, strconv.FormatBool(created)).Inc()
		resp.Variant = exp.Variant(assignment.VariantID)
		span.SetAttributes(attribute.String("experiment.variant", assignment.VariantID))
	}
	return resp, nil
}

// RecordExposure 由前端在真正展示优惠时调用。标识必须已经有分组。
func (s *PromotionService) RecordExposure(ctx context.Context, req *RecordExposureRequest) error {
	ctx, span := s.tracer.Start(ctx, "service.RecordExposure")
	defer span.End()

	if req == nil || req.ExperimentID == "" || req.Identifier == "" {
		return errors.Wrap(domain.ErrInvalidRequest, "experiment_id and identifier are required")
	}
	exp, err := s.experiments.FindExperiment(ctx, req.ExperimentID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	assignment, err := s.store.GetAssignment(ctx, exp.ID, req.Identifier)
	if err != nil {
		span.RecordError(err)
		return err
	}

	offerIDs := req.OfferIDs
	if len(offerIDs) == 0 {
		if v := exp.Variant(assignment.VariantID); v != nil {
			offerIDs = v.OfferIDs
		}
	}
	return s.emitExposure(ctx, &domain.ExposureEvent{
		ID:           uuid.NewString(),
		ExperimentID: exp.ID,
		VariantID:    assignment.VariantID,
		Identifier:   req.Identifier,
		OfferIDs:     offerIDs,
		OccurredAt:   s.now().UTC(),
	})
}

// RecordConversion 记录一次下单转化。没有指定实验时，记到该标识所在的全部运行中实验。
func (s *PromotionService) RecordConversion(ctx context.Context, req *RecordConversionRequest) (*RecordConversionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.RecordConversion")
	defer span.End()

	if req == nil || req.Identifier == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "identifier is required")
	}

	var exps []*domain.Experiment
	if req.ExperimentID != "" {
		exp, err := s.experiments.FindExperiment(ctx, req.ExperimentID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		exps = []*domain.Experiment{exp}
	} else {
		var err error
		exps, err = s.experiments.ListRunningExperiments(ctx, s.now())
		if err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "failed to load running experiments")
		}
	}

	resp := &RecordConversionResponse{}
	for _, exp := range exps {
		assignment, err := s.store.GetAssignment(ctx, exp.ID, req.Identifier)
		if errors.Is(err, domain.ErrAssignmentNotFound) {
			if req.ExperimentID != "" {
				return nil, err
			}
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		err = s.emitConversion(ctx, &domain.ConversionEvent{
			ID:           uuid.NewString(),
			ExperimentID: exp.ID,
			VariantID:    assignment.VariantID,
			Identifier:   req.Identifier,
			OrderID:      req.OrderID,
			Revenue:      req.Revenue,
			OccurredAt:   s.now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		resp.Recorded++
	}
	span.SetAttributes(attribute.Int("conversions.recorded", resp.Recorded))
	return resp, nil
}

func (s *PromotionService) assignAll(ctx context.Context, exps []*domain.Experiment, identifier string) (map[string]*domain.Variant, map[string]string) {
	variants := make(map[string]*domain.Variant, len(exps))
	assignments := make(map[string]string, len(exps))
	if identifier == "" {
		return variants, assignments
	}
	for _, exp := range exps {
		a, created, err := s.assigner.Resolve(ctx, exp, identifier)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("experiment_id", exp.ID).Msg("assignment failed, treating identifier as outside the experiment")
			continue
		}
		if a == nil {
			continue
		}
		assignmentsTotal.WithLabelValues(exp.ID, strconv.FormatBool(created)).Inc()
		assignments[exp.ID] = a.VariantID
		if v := exp.Variant(a.VariantID); v != nil {
			variants[exp.ID] = v
		}
	}
	return variants, assignments
}

func (s *PromotionService) logExposures(ctx context.Context, exps []*domain.Experiment, variants map[string]*domain.Variant, identifier string, result *domain.EvaluationResult) {
	if s.events == nil || identifier == "" {
		return
	}
	shown := append([]string{}, result.ApplicableOffers...)
	for _, p := range result.PotentialOffers {
		shown = append(shown, p.OfferID)
	}
	for _, exp := range exps {
		v := variants[exp.ID]
		ids := experiment.ShownOffers(v, shown)
		if len(ids) == 0 {
			continue
		}
		// 曝光失败只记录日志，不影响评估结果
		_ = s.emitExposure(ctx, &domain.ExposureEvent{
			ID:           uuid.NewString(),
			ExperimentID: exp.ID,
			VariantID:    v.ID,
			Identifier:   identifier,
			OfferIDs:     ids,
			OccurredAt:   s.now().UTC(),
		})
	}
}

func (s *PromotionService) emitExposure(ctx context.Context, e *domain.ExposureEvent) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.LogExposure(ctx, e); err != nil {
		eventsTotal.WithLabelValues("exposure", "error").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("experiment_id", e.ExperimentID).Msg("failed to log exposure")
		return errors.Wrap(err, "failed to log exposure")
	}
	eventsTotal.WithLabelValues("exposure", "ok").Inc()
	return nil
}

func (s *PromotionService) emitConversion(ctx context.Context, e *domain.ConversionEvent) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.LogConversion(ctx, e); err != nil {
		eventsTotal.WithLabelValues("conversion", "error").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("experiment_id", e.ExperimentID).Msg("failed to log conversion")
		return errors.Wrap(err, "failed to log conversion")
	}
	eventsTotal.WithLabelValues("conversion", "ok").Inc()
	return nil
}

// evalContext 补齐评估时间，并从 Baggage 中补充上游传下来的渠道和会话
func (s *PromotionService) evalContext(ctx context.Context, in *domain.EvalContext) *domain.EvalContext {
	out := domain.EvalContext{}
	if in != nil {
		out = *in
	}
	if out.Now.IsZero() {
		out.Now = s.now()
	}
	bag := baggage.FromContext(ctx)
	if out.Channel == "" {
		out.Channel = bag.Member("channel").Value()
	}
	if out.SessionID == "" {
		out.SessionID = bag.Member("session_id").Value()
	}
	return &out
}

// budgetFor 用请求里的非零字段覆盖默认预算
func (s *PromotionService) budgetFor(req *EvaluateCartRequest) conflict.BudgetOptions {
	opts := *s.budget.Load()
	if b := req.Budget; b != nil {
		if b.MaxOffers > 0 {
			opts.MaxOffers = b.MaxOffers
		}
		if b.MaxDiscountAmount > 0 {
			opts.MaxDiscountAmount = b.MaxDiscountAmount
		}
		if b.MaxDiscountPercent > 0 {
			opts.MaxDiscountPercent = b.MaxDiscountPercent
		}
		if b.Mode != "" {
			opts.Mode = b.Mode
		}
	}
	opts.CartSubtotal = req.Cart.SubtotalAmount()
	opts.LineLimits = conflict.LineLimitsFor(req.Cart)
	return opts
}

func (s *PromotionService) observe(res *domain.Resolution, start time.Time) {
	evaluationsTotal.WithLabelValues("ok").Inc()
	evaluationDuration.Observe(time.Since(start).Seconds())
	discountAmount.Observe(res.TotalDiscount)
	for range res.Accepted {
		plansTotal.WithLabelValues("accepted", "").Inc()
	}
	for _, r := range res.Rejected {
		plansTotal.WithLabelValues("rejected", string(r.Reason)).Inc()
	}
}

// validateCart 检查行数、数量和价格是否在允许范围内
func (s *PromotionService) validateCart(cart *domain.Cart) error {
	if len(cart.Lines) > s.maxCartLines {
		return errors.Wrapf(domain.ErrInvalidRequest, "cart has %d lines, at most %d allowed", len(cart.Lines), s.maxCartLines)
	}
	for _, l := range cart.Lines {
		if l.Quantity < 1 || l.Quantity > s.maxLineQuantity {
			return errors.Wrapf(domain.ErrInvalidRequest, "line %s: quantity %d must be between 1 and %d", l.Key(), l.Quantity, s.maxLineQuantity)
		}
		if l.UnitPrice < 0 || l.ExtendedPrice < 0 {
			return errors.Wrapf(domain.ErrInvalidRequest, "line %s: price must not be negative", l.Key())
		}
	}
	return nil
}

// identifierFor：登录用户用 user id，否则用会话 id
func identifierFor(user *domain.User, ctx *domain.EvalContext) string {
	if user != nil && user.ID != "" {
		return user.ID
	}
	if ctx != nil {
		return ctx.SessionID
	}
	return ""
}
