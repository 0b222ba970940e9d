package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FanOutRequest are the params of the sync-all-shops function
type FanOutRequest struct {
	Channel    string `json:"channel"`
	PageSize   int    `json:"pageSize"`
	DaysToSync int    `json:"daysToSync"`
}

// ShopSyncParams are the params of the sync-shop-orders function
type ShopSyncParams struct {
	ShopID     string `json:"shopId" validate:"required"`
	DaysToSync int    `json:"daysToSync" validate:"gte=0"`
	PageSize   int    `json:"pageSize" validate:"gte=0,lte=100"`
}

// ShopFanOut schedules one staggered one-time sync job per active shop
type ShopFanOut struct {
	shops     ShopRepository
	jobs      JobStore
	scheduler JobScheduler
	stagger   time.Duration
	channel   string
	logger    *zap.Logger
	now       func() time.Time
}

// NewShopFanOut creates a new shop fan-out orchestrator
func NewShopFanOut(shops ShopRepository, jobs JobStore, scheduler JobScheduler, stagger time.Duration, channel string) *ShopFanOut {
	if stagger <= 0 {
		stagger = 2 * time.Minute
	}
	if channel == "" {
		channel = models.ChannelTikTok
	}
	return &ShopFanOut{
		shops:     shops,
		jobs:      jobs,
		scheduler: scheduler,
		stagger:   stagger,
		channel:   channel,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// SyncAllShops creates and schedules the per-shop jobs and returns how many
// were scheduled. It does not wait for any sync to run.
func (f *ShopFanOut) SyncAllShops(ctx context.Context, req FanOutRequest) (_ int, err error) {
	ctx, span := util.StartSpan(ctx, "ShopFanOut.SyncAllShops")
	defer func() {
		util.RecordError(span, err)
		span.End()
	}()

	channel := req.Channel
	if channel == "" {
		channel = f.channel
	}

	shops, err := f.shops.ListActiveShops(ctx, channel)
	if err != nil {
		return 0, fmt.Errorf("failed to list active shops: %w", err)
	}

	now := f.now().UTC()
	scheduled := 0
	for i, shop := range shops {
		job, err := f.shopJob(shop, req, now.Add(time.Duration(i)*f.stagger))
		if err != nil {
			return scheduled, err
		}

		if err := f.jobs.CreateJob(ctx, job); err != nil {
			f.logger.Error("Failed to create shop sync job",
				zap.String("shop_id", shop.ShopID),
				zap.Error(err))
			continue
		}
		if err := f.scheduler.ScheduleJob(job); err != nil {
			f.logger.Error("Failed to schedule shop sync job",
				zap.String("shop_id", shop.ShopID),
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}

		scheduled++
		util.FanOutJobsScheduledTotal.Inc()
		f.logger.Info("Shop sync job scheduled",
			zap.String("shop_id", shop.ShopID),
			zap.String("job_id", job.ID),
			zap.Time("scheduled_at", *job.ScheduledAt))
	}

	f.logger.Info("Fan-out completed",
		zap.String("channel", channel),
		zap.Int("shops", len(shops)),
		zap.Int("scheduled", scheduled))
	return scheduled, nil
}

func (f *ShopFanOut) shopJob(shop models.ShopCredential, req FanOutRequest, at time.Time) (*models.Job, error) {
	params, err := json.Marshal(ShopSyncParams{
		ShopID:     shop.ShopID,
		DaysToSync: req.DaysToSync,
		PageSize:   req.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job params: %w", err)
	}

	config, err := json.Marshal(models.FunctionCallConfig{
		FunctionName: models.FunctionSyncShopOrders,
		Params:       params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job config: %w", err)
	}

	return &models.Job{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("sync-shop-orders:%s", shop.ShopID),
		Description: fmt.Sprintf("Order sync for shop %s", shop.ShopName),
		Type:        models.JobTypeFunctionCall,
		TriggerType: models.TriggerTypeOneTime,
		Config:      string(config),
		Status:      models.JobStatusActive,
		ScheduledAt: &at,
		CreatedAt:   f.now().UTC(),
		UpdatedAt:   f.now().UTC(),
	}, nil
}
