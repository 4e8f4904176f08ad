package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
)

// registryCacheTTL keeps per-date service lookups fresh enough that a
// cancelled service disappears from expansion within a couple minutes.
const registryCacheTTL = 2 * time.Minute

type serviceRegistry interface {
	ServicesOn(ctx context.Context, date time.Time) ([]models.ChapelService, error)
}

// BatchService expands an admin's date and service selection into the
// concrete (date, service) combinations a workflow will cover.
type BatchService struct {
	registry serviceRegistry
	cache    *CacheService
	logger   *zap.Logger
}

// NewBatchService constructs the batch selector.
func NewBatchService(registry serviceRegistry, cache *CacheService, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{registry: registry, cache: cache, logger: logger}
}

// ParseSelection validates the raw selection, then expands the
// cartesian product of dates and services against the per-date
// registry. Combinations without an active registry entry are skipped
// and reported, never fatal. Validation gathers every violation before
// failing so the admin fixes the form once.
func (s *BatchService) ParseSelection(ctx context.Context, sel models.BatchSelection) (*models.BatchQuery, error) {
	dates, serviceIDs, err := normalizeSelection(sel)
	if err != nil {
		return nil, err
	}

	combinations := make([]models.ServiceCombination, 0, len(dates)*len(serviceIDs))
	var missing []string
	seen := make(map[string]struct{}, len(dates)*len(serviceIDs))
	for _, date := range dates {
		registry, err := s.servicesOn(ctx, date)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load service registry for "+date)
		}
		active := make(map[string]models.ChapelService, len(registry))
		for _, entry := range registry {
			if entry.Active {
				active[entry.ID] = entry
			}
		}
		for _, serviceID := range serviceIDs {
			key := date + "\x00" + serviceID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			entry, ok := active[serviceID]
			if !ok {
				missing = append(missing, date+"/"+serviceID)
				s.logger.Warn("no active service for combination",
					zap.String("date", date),
					zap.String("service_id", serviceID))
				continue
			}
			combinations = append(combinations, models.ServiceCombination{
				Date:        date,
				ServiceID:   serviceID,
				ServiceName: entry.Label,
				ServiceTime: entry.Time,
			})
		}
	}

	if len(combinations) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoValidCombinations, "no active services matched the selection")
	}

	sorted := append([]string(nil), dates...)
	sort.Strings(sorted)
	return &models.BatchQuery{
		Combinations:        combinations,
		DateRange:           models.DateRange{Start: sorted[0], End: sorted[len(sorted)-1]},
		TotalServices:       len(combinations),
		MissingCombinations: missing,
	}, nil
}

// SplitBatchQuery partitions the combinations into contiguous chunks
// of at most chunkSize, preserving order. Each chunk carries its own
// total so downstream work can be bounded per request.
func SplitBatchQuery(query models.BatchQuery, chunkSize int) []models.BatchQuery {
	if chunkSize <= 0 || len(query.Combinations) <= chunkSize {
		return []models.BatchQuery{query}
	}
	chunks := make([]models.BatchQuery, 0, (len(query.Combinations)+chunkSize-1)/chunkSize)
	for start := 0; start < len(query.Combinations); start += chunkSize {
		end := start + chunkSize
		if end > len(query.Combinations) {
			end = len(query.Combinations)
		}
		part := query.Combinations[start:end]
		chunks = append(chunks, models.BatchQuery{
			Combinations:  part,
			DateRange:     query.DateRange,
			TotalServices: len(part),
		})
	}
	return chunks
}

func normalizeSelection(sel models.BatchSelection) ([]string, []string, error) {
	var violations []string
	if len(sel.Dates) == 0 {
		violations = append(violations, "at least one date is required")
	}
	if len(sel.ServiceIDs) == 0 {
		violations = append(violations, "at least one service is required")
	}

	dates := make([]string, 0, len(sel.Dates))
	seenDates := make(map[string]struct{}, len(sel.Dates))
	for _, raw := range sel.Dates {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil || parsed.Format(dateLayout) != raw {
			violations = append(violations, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw))
			continue
		}
		if _, dup := seenDates[raw]; dup {
			violations = append(violations, fmt.Sprintf("duplicate date %q", raw))
			continue
		}
		seenDates[raw] = struct{}{}
		dates = append(dates, raw)
	}

	serviceIDs := make([]string, 0, len(sel.ServiceIDs))
	seenServices := make(map[string]struct{}, len(sel.ServiceIDs))
	for _, id := range sel.ServiceIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			violations = append(violations, "service id must not be blank")
			continue
		}
		if _, dup := seenServices[trimmed]; dup {
			violations = append(violations, fmt.Sprintf("duplicate service id %q", trimmed))
			continue
		}
		seenServices[trimmed] = struct{}{}
		serviceIDs = append(serviceIDs, trimmed)
	}

	if len(violations) > 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, strings.Join(violations, "; "))
	}
	return dates, serviceIDs, nil
}

func (s *BatchService) servicesOn(ctx context.Context, date string) ([]models.ChapelService, error) {
	cacheKey := "registry:services:" + date
	var cached []models.ChapelService
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse registry date %q: %w", date, err)
	}
	services, err := s.registry.ServicesOn(ctx, parsed.UTC())
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, cacheKey, services, registryCacheTTL)
	return services, nil
}
