package application

import (
	"context"
	"time"

	"github.com/wyfcoding/evservicecenter/internal/inventory/domain"
	"github.com/wyfcoding/evservicecenter/pkg/cache"
	"github.com/wyfcoding/evservicecenter/pkg/logger"
	"github.com/wyfcoding/evservicecenter/pkg/metrics"
	"github.com/wyfcoding/evservicecenter/pkg/utils"
)

// TTLs 缓存 TTL 分层
type TTLs struct {
	Detail time.Duration
	List   time.Duration
	Stats  time.Duration
}

// DefaultTTLs 默认分层：详情 1 小时、列表 5 分钟、统计 12 小时
func DefaultTTLs() TTLs {
	return TTLs{
		Detail: time.Hour,
		List:   5 * time.Minute,
		Stats:  12 * time.Hour,
	}
}

const maxPageLimit = 100

// PartListResult 分页列表响应
type PartListResult struct {
	Parts []domain.Part `json:"parts"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// PartHistoryResult 流水分页响应
type PartHistoryResult struct {
	Logs  []domain.StockLog `json:"logs"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// PartQueryService 库存读用例，全部读路径走旁路缓存：
// 先查缓存，命中原样返回；未命中回源计算、按端点 TTL 写入后返回。
type PartQueryService struct {
	repo    domain.PartRepository
	cache   cache.Store
	ttls    TTLs
	metrics *metrics.Metrics
}

// NewPartQueryService 创建库存读用例服务。metrics 可为 nil。
func NewPartQueryService(repo domain.PartRepository, store cache.Store, ttls TTLs, m *metrics.Metrics) *PartQueryService {
	return &PartQueryService{
		repo:    repo,
		cache:   store,
		ttls:    ttls,
		metrics: m,
	}
}

// GetPart 查询配件详情
func (s *PartQueryService) GetPart(ctx context.Context, partID uint) (*domain.Part, error) {
	key := partDetailKey(partID)

	var cached domain.Part
	if hit := s.tryCache(ctx, key, &cached); hit {
		return &cached, nil
	}

	part, err := s.repo.GetByID(ctx, partID)
	if err != nil {
		return nil, err
	}

	s.fillCache(ctx, key, part, s.ttls.Detail)
	return part, nil
}

// ListParts 分页查询配件列表
func (s *PartQueryService) ListParts(ctx context.Context, page, limit int, search string, lowStockOnly bool) (*PartListResult, error) {
	p := utils.NormalizePage(page, limit, maxPageLimit)
	search = utils.NormalizeSearch(search)
	key := partsListKey(p.Page, p.Limit, search, lowStockOnly)

	var cached PartListResult
	if hit := s.tryCache(ctx, key, &cached); hit {
		return &cached, nil
	}

	parts, total, err := s.repo.List(ctx, domain.PartQuery{
		Page:         p.Page,
		Limit:        p.Limit,
		Search:       search,
		LowStockOnly: lowStockOnly,
	})
	if err != nil {
		return nil, err
	}

	result := &PartListResult{Parts: parts, Total: total, Page: p.Page, Limit: p.Limit}
	s.fillCache(ctx, key, result, s.ttls.List)
	return result, nil
}

// GetHistory 分页查询配件流水
func (s *PartQueryService) GetHistory(ctx context.Context, partID uint, page, limit int) (*PartHistoryResult, error) {
	p := utils.NormalizePage(page, limit, maxPageLimit)
	key := partHistoryKey(partID, p.Page, p.Limit)

	var cached PartHistoryResult
	if hit := s.tryCache(ctx, key, &cached); hit {
		return &cached, nil
	}

	logs, total, err := s.repo.History(ctx, partID, p.Page, p.Limit)
	if err != nil {
		return nil, err
	}

	result := &PartHistoryResult{Logs: logs, Total: total, Page: p.Page, Limit: p.Limit}
	s.fillCache(ctx, key, result, s.ttls.List)
	return result, nil
}

// GetUsageStats 查询年度用料统计
func (s *PartQueryService) GetUsageStats(ctx context.Context, year int) ([]domain.PartUsageStat, error) {
	key := partsStatsKey(year)

	var cached []domain.PartUsageStat
	if hit := s.tryCache(ctx, key, &cached); hit {
		return cached, nil
	}

	stats, err := s.repo.UsageStats(ctx, year)
	if err != nil {
		return nil, err
	}

	s.fillCache(ctx, key, stats, s.ttls.Stats)
	return stats, nil
}

// tryCache 查缓存；缓存故障按未命中处理，读路径不因缓存失败而失败
func (s *PartQueryService) tryCache(ctx context.Context, key string, dest interface{}) bool {
	hit, err := s.cache.GetJSON(ctx, key, dest)
	if err != nil {
		logger.Warn(ctx, "Cache read failed, falling back to store", "key", key, "error", err)
		return false
	}
	if s.metrics != nil {
		if hit {
			s.metrics.CacheHitsTotal.Inc()
		} else {
			s.metrics.CacheMissesTotal.Inc()
		}
	}
	return hit
}

func (s *PartQueryService) fillCache(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := s.cache.SetJSON(ctx, key, value, ttl); err != nil {
		logger.Warn(ctx, "Cache write failed", "key", key, "error", err)
	}
}
