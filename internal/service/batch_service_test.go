package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	appErrors "github.com/Juls-123/chapel-admin-sub000/pkg/errors"
)

type mockServiceRegistry struct {
	// keyed by date, value lists registry entries for that day
	byDate map[string][]models.ChapelService
	calls  int
	err    error
}

func (m *mockServiceRegistry) ServicesOn(ctx context.Context, date time.Time) ([]models.ChapelService, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.byDate[date.Format("2006-01-02")], nil
}

func registryEntry(id, label string, active bool) models.ChapelService {
	return models.ChapelService{ID: id, Label: label, Time: "07:00", Type: models.ServiceTypeDevotion, Active: active}
}

func TestParseSelectionExpansion(t *testing.T) {
	registry := &mockServiceRegistry{byDate: map[string][]models.ChapelService{
		"2025-03-03": {
			registryEntry("svc-morning", "Morning Devotion", true),
			registryEntry("svc-evening", "Evening Service", false),
		},
		"2025-03-04": {
			registryEntry("svc-morning", "Morning Devotion", true),
			registryEntry("svc-evening", "Evening Service", true),
		},
	}}
	svc := NewBatchService(registry, nil, zap.NewNop())

	query, err := svc.ParseSelection(context.Background(), models.BatchSelection{
		Dates:      []string{"2025-03-03", "2025-03-04"},
		ServiceIDs: []string{"svc-morning", "svc-evening"},
	})
	require.NoError(t, err)

	got := make([]string, 0, len(query.Combinations))
	for _, combo := range query.Combinations {
		got = append(got, combo.Date+"/"+combo.ServiceID)
	}
	assert.Equal(t, []string{
		"2025-03-03/svc-morning",
		"2025-03-04/svc-morning",
		"2025-03-04/svc-evening",
	}, got)
	assert.Equal(t, 3, query.TotalServices)
	assert.Equal(t, models.DateRange{Start: "2025-03-03", End: "2025-03-04"}, query.DateRange)
	assert.Equal(t, []string{"2025-03-03/svc-evening"}, query.MissingCombinations)
	assert.Equal(t, "Morning Devotion", query.Combinations[0].ServiceName)
}

func TestParseSelectionOrderIndependent(t *testing.T) {
	byDate := map[string][]models.ChapelService{
		"2025-03-03": {registryEntry("svc-a", "A", true), registryEntry("svc-b", "B", true)},
		"2025-03-04": {registryEntry("svc-a", "A", true), registryEntry("svc-b", "B", true)},
		"2025-03-05": {registryEntry("svc-a", "A", true)},
	}

	comboSet := func(dates, services []string) map[string]struct{} {
		svc := NewBatchService(&mockServiceRegistry{byDate: byDate}, nil, zap.NewNop())
		query, err := svc.ParseSelection(context.Background(), models.BatchSelection{Dates: dates, ServiceIDs: services})
		require.NoError(t, err)
		set := make(map[string]struct{}, len(query.Combinations))
		for _, combo := range query.Combinations {
			set[combo.Date+"\x00"+combo.ServiceID] = struct{}{}
		}
		require.Len(t, set, len(query.Combinations), "combinations must already be unique")
		return set
	}

	first := comboSet([]string{"2025-03-03", "2025-03-04", "2025-03-05"}, []string{"svc-a", "svc-b"})
	second := comboSet([]string{"2025-03-05", "2025-03-03", "2025-03-04"}, []string{"svc-b", "svc-a"})
	third := comboSet([]string{"2025-03-03", "2025-03-04", "2025-03-05"}, []string{"svc-a", "svc-b"})

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
}

func TestParseSelectionCollectsAllViolations(t *testing.T) {
	svc := NewBatchService(&mockServiceRegistry{}, nil, zap.NewNop())

	_, err := svc.ParseSelection(context.Background(), models.BatchSelection{
		Dates:      []string{"2025-03-03", "03/03/2025", "2025-03-03", "2025-3-4"},
		ServiceIDs: []string{"svc-a", "svc-a", ""},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, `invalid date "03/03/2025"`)
	assert.Contains(t, appErr.Message, `duplicate date "2025-03-03"`)
	assert.Contains(t, appErr.Message, `invalid date "2025-3-4"`)
	assert.Contains(t, appErr.Message, `duplicate service id "svc-a"`)
	assert.Contains(t, appErr.Message, "service id must not be blank")
}

func TestParseSelectionEmptyInput(t *testing.T) {
	svc := NewBatchService(&mockServiceRegistry{}, nil, zap.NewNop())

	_, err := svc.ParseSelection(context.Background(), models.BatchSelection{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "at least one date is required")
	assert.Contains(t, appErr.Message, "at least one service is required")
}

func TestParseSelectionNoValidCombinations(t *testing.T) {
	registry := &mockServiceRegistry{byDate: map[string][]models.ChapelService{
		"2025-03-03": {registryEntry("svc-a", "A", false)},
	}}
	svc := NewBatchService(registry, nil, zap.NewNop())

	_, err := svc.ParseSelection(context.Background(), models.BatchSelection{
		Dates:      []string{"2025-03-03"},
		ServiceIDs: []string{"svc-a", "svc-unknown"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoValidCombinations.Code, appErrors.FromError(err).Code)
}

func TestSplitBatchQuery(t *testing.T) {
	combos := make([]models.ServiceCombination, 7)
	for i := range combos {
		combos[i] = models.ServiceCombination{Date: "2025-03-03", ServiceID: fmt.Sprintf("svc-%d", i)}
	}
	query := models.BatchQuery{
		Combinations:  combos,
		DateRange:     models.DateRange{Start: "2025-03-03", End: "2025-03-03"},
		TotalServices: len(combos),
	}

	chunks := SplitBatchQuery(query, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, 3, chunks[0].TotalServices)
	assert.Equal(t, 3, chunks[1].TotalServices)
	assert.Equal(t, 1, chunks[2].TotalServices)

	var flattened []string
	for _, chunk := range chunks {
		assert.Equal(t, query.DateRange, chunk.DateRange)
		for _, combo := range chunk.Combinations {
			flattened = append(flattened, combo.ServiceID)
		}
	}
	want := make([]string, len(combos))
	for i := range combos {
		want[i] = fmt.Sprintf("svc-%d", i)
	}
	assert.Equal(t, want, flattened, "chunking preserves order")

	whole := SplitBatchQuery(query, 0)
	require.Len(t, whole, 1)
	assert.Equal(t, query, whole[0])
}
