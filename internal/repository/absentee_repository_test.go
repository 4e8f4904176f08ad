package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juls-123/chapel-admin-sub000/pkg/storage"
)

func TestAbsenteesReadsBlob(t *testing.T) {
	store := newMemBlobStore()
	store.objects["attendance/2025-03-03/svc-1/300.json"] = []byte(`[{"student_id":"s1","matric_number":"21/0456","student_name":"Adaeze Okafor","level":"300"}]`)
	repo := NewAbsenteeRepository(store)

	rows, err := repo.Absentees(context.Background(), "2025-03-03", "svc-1", "300")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0].StudentID)
	assert.Equal(t, "300", rows[0].Level)
}

func TestAbsenteesMissingBlob(t *testing.T) {
	repo := NewAbsenteeRepository(newMemBlobStore())

	_, err := repo.Absentees(context.Background(), "2025-03-03", "svc-1", "100")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound))
}

func TestAbsenteesMalformedBlob(t *testing.T) {
	store := newMemBlobStore()
	store.objects["attendance/2025-03-03/svc-1/200.json"] = []byte(`{"not":"an array"`)
	repo := NewAbsenteeRepository(store)

	_, err := repo.Absentees(context.Background(), "2025-03-03", "svc-1", "200")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode absentee blob")
}
