// Package service implements the quota/trust gate.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jfilter/timetiles-sub015/internal/clock"
	"github.com/jfilter/timetiles-sub015/internal/observability/metrics"
	domain "github.com/jfilter/timetiles-sub015/internal/quota/domain"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.PipelineMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.PipelineMetrics
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("quota.service"),
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Check reports whether userID may consume amount units of the quota. It
// never consumes; a lazy daily reset is the only write it may perform.
func (s *Service) Check(ctx context.Context, userID snowflake.ID, quota domain.QuotaType, amount int64) (domain.Decision, error) {
	usage, err := s.loadUsage(ctx, userID)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.decide(usage, quota, usage.Current(quota), amount), nil
}

// CheckWithCurrent evaluates a quota whose live counter is owned by the
// caller, such as per-import event volume.
func (s *Service) CheckWithCurrent(ctx context.Context, userID snowflake.ID, quota domain.QuotaType, current, amount int64) (domain.Decision, error) {
	usage, err := s.loadUsage(ctx, userID)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.decide(usage, quota, current, amount), nil
}

// Consume increments usage after the gated action committed. A failed action
// must never reach Consume.
func (s *Service) Consume(ctx context.Context, userID snowflake.ID, quota domain.QuotaType, amount int64) error {
	if quota == domain.QuotaEventsPerImport {
		// Tracked on the import job itself, nothing to persist here.
		return nil
	}
	usage, err := s.loadUsage(ctx, userID)
	if err != nil {
		return err
	}
	if usage.Limits().Limit(quota) == domain.Unlimited {
		return nil
	}
	usage.Add(quota, amount)
	usage.UpdatedAt = s.clock.Now().UTC()
	return s.db.WithContext(ctx).Save(usage).Error
}

// Release undoes a previous Consume, for resources that are given back
// (deleted schedules, rolled-back event batches).
func (s *Service) Release(ctx context.Context, userID snowflake.ID, quota domain.QuotaType, amount int64) error {
	return s.Consume(ctx, userID, quota, -amount)
}

// Gate runs Check and converts a denial into a QuotaExceededError.
func (s *Service) Gate(ctx context.Context, userID snowflake.ID, quota domain.QuotaType, amount int64) error {
	decision, err := s.Check(ctx, userID, quota, amount)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		if s.metrics != nil {
			s.metrics.IncQuotaDenial(string(quota))
		}
		return &domain.QuotaExceededError{Decision: decision}
	}
	return nil
}

// SweepDailyResets resets daily counters for users whose stored reset day is
// behind the current UTC day. The lazy reset in Check covers active users;
// the sweep covers everyone else.
func (s *Service) SweepDailyResets(ctx context.Context) (int64, error) {
	day := utcDay(s.clock.Now())
	result := s.db.WithContext(ctx).Exec(
		`UPDATE user_usage
		 SET file_uploads_today = 0, url_fetches_today = 0, import_jobs_today = 0,
		     daily_reset_at = ?, updated_at = ?
		 WHERE daily_reset_at < ?`,
		day,
		s.clock.Now().UTC(),
		day,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("daily quota sweep reset users", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) loadUsage(ctx context.Context, userID snowflake.ID) (*usageWithLimits, error) {
	var usage domain.UserUsage
	err := s.db.WithContext(ctx).First(&usage, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		usage = domain.UserUsage{
			UserID:       userID,
			TrustLevel:   1,
			DailyResetAt: utcDay(s.clock.Now()),
		}
		if err := s.db.WithContext(ctx).Create(&usage).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	day := utcDay(s.clock.Now())
	if usage.DailyResetAt.Before(day) {
		usage.ResetDaily(day)
		usage.UpdatedAt = s.clock.Now().UTC()
		if err := s.db.WithContext(ctx).Save(&usage).Error; err != nil {
			return nil, err
		}
	}
	return &usageWithLimits{UserUsage: usage, limits: domain.LimitsForTrustLevel(usage.TrustLevel)}, nil
}

func (s *Service) decide(usage *usageWithLimits, quota domain.QuotaType, current, amount int64) domain.Decision {
	limit := usage.limits.Limit(quota)
	decision := domain.Decision{
		Quota:   quota,
		Current: current,
		Limit:   limit,
	}
	if limit == domain.Unlimited {
		decision.Allowed = true
		decision.Remaining = domain.Unlimited
		return decision
	}
	decision.Remaining = limit - current
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	decision.Allowed = current+amount <= limit
	if quota.Daily() {
		next := utcDay(s.clock.Now()).Add(24 * time.Hour)
		decision.ResetsAt = &next
	}
	return decision
}

type usageWithLimits struct {
	domain.UserUsage
	limits domain.Limits
}

func (u *usageWithLimits) Limits() domain.Limits { return u.limits }

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
