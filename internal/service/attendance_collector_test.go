package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/pkg/storage"
)

type mockAbsenteeReader struct {
	blobs  map[string][]models.Absentee
	broken map[string]bool
}

func (m *mockAbsenteeReader) Absentees(ctx context.Context, date, serviceID, level string) ([]models.Absentee, error) {
	key := fmt.Sprintf("%s/%s/%s", date, serviceID, level)
	if m.broken[key] {
		return nil, errors.New("corrupt blob")
	}
	rows, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return rows, nil
}

func absentee(id, level string) models.Absentee {
	return models.Absentee{
		StudentID:    id,
		MatricNumber: "MTU/" + id,
		StudentName:  "Student " + id,
		Level:        level,
	}
}

func TestCollectMergesPerStudent(t *testing.T) {
	reader := &mockAbsenteeReader{blobs: map[string][]models.Absentee{
		"2025-03-03/svc-a/100": {absentee("s1", "100"), absentee("s2", "100")},
		"2025-03-03/svc-a/200": {absentee("s3", "200")},
		"2025-03-04/svc-b/100": {absentee("s1", "100")},
		"2025-03-04/svc-b/300": {absentee("s4", "300")},
	}}
	collector := NewAttendanceCollector(reader, nil, zap.NewNop())

	combos := []models.ServiceCombination{
		{Date: "2025-03-03", ServiceID: "svc-a", ServiceName: "Morning Devotion", ServiceTime: "07:00"},
		{Date: "2025-03-04", ServiceID: "svc-b", ServiceName: "Evening Service", ServiceTime: "18:00"},
	}
	merged := collector.Collect(context.Background(), combos)

	byID := make(map[string]models.MergedAbsentee, len(merged))
	for _, entry := range merged {
		_, dup := byID[entry.StudentID]
		require.False(t, dup, "student %s appears twice", entry.StudentID)
		byID[entry.StudentID] = entry
	}
	require.Len(t, byID, 4)

	// Union of services across the merge matches the appearances in
	// the input blobs.
	total := 0
	for _, entry := range merged {
		total += len(entry.Services)
	}
	assert.Equal(t, 5, total)

	s1 := byID["s1"]
	require.Len(t, s1.Services, 2)
	assert.Equal(t, "svc-a", s1.Services[0].ServiceID)
	assert.Equal(t, "Morning Devotion", s1.Services[0].ServiceName)
	assert.Equal(t, "2025-03-03", s1.Services[0].ServiceDate)
	assert.Equal(t, "svc-b", s1.Services[1].ServiceID)

	require.Len(t, byID["s4"].Services, 1)
	assert.Equal(t, "300", byID["s4"].Level)
}

func TestCollectToleratesMissingAndBrokenBlobs(t *testing.T) {
	reader := &mockAbsenteeReader{
		blobs: map[string][]models.Absentee{
			"2025-03-03/svc-a/100": {absentee("s1", "100")},
		},
		broken: map[string]bool{"2025-03-03/svc-a/200": true},
	}
	collector := NewAttendanceCollector(reader, []string{"100", "200", "300"}, zap.NewNop())

	merged := collector.Collect(context.Background(), []models.ServiceCombination{
		{Date: "2025-03-03", ServiceID: "svc-a"},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, "s1", merged[0].StudentID)
}

func TestCollectEmptyWhenNothingFound(t *testing.T) {
	collector := NewAttendanceCollector(&mockAbsenteeReader{}, nil, zap.NewNop())
	merged := collector.Collect(context.Background(), []models.ServiceCombination{
		{Date: "2025-03-03", ServiceID: "svc-a"},
	})
	assert.Empty(t, merged)
}

func TestFilterByMissCount(t *testing.T) {
	services := func(n int) []models.MissedService {
		list := make([]models.MissedService, n)
		for i := range list {
			list[i] = models.MissedService{ServiceID: fmt.Sprintf("svc-%d", i)}
		}
		return list
	}
	input := []models.MergedAbsentee{
		{StudentID: "s1", Services: services(1)},
		{StudentID: "s2", Services: services(4)},
		{StudentID: "s3", Services: services(3)},
		{StudentID: "s4", Services: services(3)},
	}

	filtered := FilterByMissCount(input, 3)
	require.Len(t, filtered, 3)
	assert.Equal(t, "s2", filtered[0].StudentID)
	// Equal counts keep their input order.
	assert.Equal(t, "s3", filtered[1].StudentID)
	assert.Equal(t, "s4", filtered[2].StudentID)

	all := FilterByMissCount(input, 0)
	assert.Len(t, all, 4, "min below one keeps everyone")
}
