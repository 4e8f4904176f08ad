package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

type contactLookup interface {
	ContactsByIDs(ctx context.Context, ids []string) (map[string]models.ContactInfo, error)
}

// WarningBuilder turns merged absentee data into the warning list
// artifact. Contact resolution is best effort: students without a
// match keep their contact fields unset, and a lookup failure degrades
// to an uncontacted list rather than aborting the build.
type WarningBuilder struct {
	contacts contactLookup
	logger   *zap.Logger
}

// NewWarningBuilder constructs the builder.
func NewWarningBuilder(contacts contactLookup, logger *zap.Logger) *WarningBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WarningBuilder{contacts: contacts, logger: logger}
}

// Build assembles the warning list for a workflow from the filtered
// absentees. Records are sorted for display: miss count descending,
// then level, then student name.
func (b *WarningBuilder) Build(ctx context.Context, workflowID string, minMissCount int, absentees []models.MergedAbsentee) *models.WarningList {
	contacts := b.resolveContacts(ctx, absentees)

	records := make([]models.WarningRecord, 0, len(absentees))
	for _, absentee := range absentees {
		record := models.WarningRecord{
			StudentID:      absentee.StudentID,
			MatricNumber:   absentee.MatricNumber,
			StudentName:    absentee.StudentName,
			Level:          absentee.Level,
			ServicesMissed: absentee.Services,
			MissCount:      len(absentee.Services),
			Status:         models.WarningNotSent,
		}
		if contact, ok := contacts[absentee.StudentID]; ok {
			record.Email = contact.Email
			record.ParentEmail = contact.ParentEmail
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].MissCount != records[j].MissCount {
			return records[i].MissCount > records[j].MissCount
		}
		if records[i].Level != records[j].Level {
			return records[i].Level < records[j].Level
		}
		return records[i].StudentName < records[j].StudentName
	})

	return &models.WarningList{
		WorkflowID:   workflowID,
		GeneratedAt:  time.Now().UTC(),
		MinMissCount: minMissCount,
		Records:      records,
		Summary:      summarize(records),
	}
}

func (b *WarningBuilder) resolveContacts(ctx context.Context, absentees []models.MergedAbsentee) map[string]models.ContactInfo {
	if b.contacts == nil || len(absentees) == 0 {
		return nil
	}
	ids := make([]string, 0, len(absentees))
	for _, absentee := range absentees {
		ids = append(ids, absentee.StudentID)
	}
	contacts, err := b.contacts.ContactsByIDs(ctx, ids)
	if err != nil {
		b.logger.Warn("contact lookup failed, building list without contacts", zap.Error(err))
		return nil
	}
	return contacts
}

func summarize(records []models.WarningRecord) models.WarningSummary {
	summary := models.WarningSummary{
		TotalWarnings: len(records),
		ByLevel:       make(map[string]int),
	}
	if len(records) == 0 {
		return summary
	}

	total := 0
	summary.MinMissCount = records[0].MissCount
	for _, record := range records {
		summary.ByLevel[record.Level]++
		total += record.MissCount
		if record.MissCount > summary.MaxMissCount {
			summary.MaxMissCount = record.MissCount
		}
		if record.MissCount < summary.MinMissCount {
			summary.MinMissCount = record.MissCount
		}
	}
	summary.AverageMissCount = float64(total) / float64(len(records))
	return summary
}
