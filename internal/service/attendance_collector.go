package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/pkg/storage"
)

type absenteeReader interface {
	Absentees(ctx context.Context, date, serviceID, level string) ([]models.Absentee, error)
}

// AttendanceCollector gathers per-level absentee blobs for each
// (date, service) combination and merges them per student. A missing
// or unreadable blob never aborts collection: the level simply
// contributes nothing.
type AttendanceCollector struct {
	absentees absenteeReader
	levels    []string
	logger    *zap.Logger
}

// NewAttendanceCollector constructs the collector. An empty levels
// list falls back to the standard five.
func NewAttendanceCollector(absentees absenteeReader, levels []string, logger *zap.Logger) *AttendanceCollector {
	if len(levels) == 0 {
		levels = models.Levels
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceCollector{absentees: absentees, levels: levels, logger: logger}
}

// Collect fetches absentees for every combination and merges them into
// one record per student. Combinations run in order; the per-level
// reads inside each combination fan out concurrently.
func (c *AttendanceCollector) Collect(ctx context.Context, combinations []models.ServiceCombination) []models.MergedAbsentee {
	merged := make(map[string]*models.MergedAbsentee)
	order := make([]string, 0)

	for _, combo := range combinations {
		for _, absentee := range c.collectService(ctx, combo) {
			entry, ok := merged[absentee.StudentID]
			if !ok {
				entry = &models.MergedAbsentee{
					StudentID:    absentee.StudentID,
					MatricNumber: absentee.MatricNumber,
					StudentName:  absentee.StudentName,
					Level:        absentee.Level,
				}
				merged[absentee.StudentID] = entry
				order = append(order, absentee.StudentID)
			}
			entry.Services = append(entry.Services, models.MissedService{
				ServiceID:   combo.ServiceID,
				ServiceName: combo.ServiceName,
				ServiceDate: combo.Date,
				ServiceTime: combo.ServiceTime,
			})
		}
	}

	result := make([]models.MergedAbsentee, 0, len(order))
	for _, studentID := range order {
		result = append(result, *merged[studentID])
	}
	return result
}

// FilterByMissCount keeps students who missed at least min services,
// sorted by miss count descending.
func FilterByMissCount(absentees []models.MergedAbsentee, min int) []models.MergedAbsentee {
	if min < 1 {
		min = 1
	}
	filtered := make([]models.MergedAbsentee, 0, len(absentees))
	for _, absentee := range absentees {
		if len(absentee.Services) >= min {
			filtered = append(filtered, absentee)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return len(filtered[i].Services) > len(filtered[j].Services)
	})
	return filtered
}

// collectService reads every level's blob for one combination. Each
// level lands in its own slot, so no lock is needed and the flattened
// output keeps level order regardless of read timing.
func (c *AttendanceCollector) collectService(ctx context.Context, combo models.ServiceCombination) []models.Absentee {
	perLevel := make([][]models.Absentee, len(c.levels))
	var wg sync.WaitGroup
	for i, level := range c.levels {
		wg.Add(1)
		go func(slot int, level string) {
			defer wg.Done()
			rows, err := c.absentees.Absentees(ctx, combo.Date, combo.ServiceID, level)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					c.logger.Debug("no absentee blob for level",
						zap.String("date", combo.Date),
						zap.String("service_id", combo.ServiceID),
						zap.String("level", level))
				} else {
					c.logger.Warn("absentee blob unreadable, treated as empty",
						zap.String("date", combo.Date),
						zap.String("service_id", combo.ServiceID),
						zap.String("level", level),
						zap.Error(err))
				}
				return
			}
			perLevel[slot] = rows
		}(i, level)
	}
	wg.Wait()

	var flat []models.Absentee
	for _, rows := range perLevel {
		flat = append(flat, rows...)
	}
	return flat
}
