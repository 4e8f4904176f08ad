package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
	"github.com/Juls-123/chapel-admin-sub000/internal/repository"
	"github.com/Juls-123/chapel-admin-sub000/pkg/config"
	"github.com/Juls-123/chapel-admin-sub000/pkg/database"
	"github.com/Juls-123/chapel-admin-sub000/pkg/storage"
)

// blobPutter is the slice of the storage backend the seed needs for
// writing absentee artifacts.
type blobPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// schema mirrors the column lists the repositories read and write.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	last_login TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	token TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	revoked BOOLEAN NOT NULL DEFAULT FALSE,
	revoked_at TIMESTAMPTZ,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS students (
	id TEXT PRIMARY KEY,
	matric_number TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	level TEXT NOT NULL,
	email TEXT,
	parent_email TEXT,
	phone TEXT,
	parent_phone TEXT,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS chapel_services (
	id TEXT PRIMARY KEY,
	date DATE NOT NULL,
	label TEXT NOT NULL,
	time TEXT NOT NULL,
	type TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS warning_workflows (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	workflow_date DATE NOT NULL,
	total_services INTEGER NOT NULL DEFAULT 0,
	total_students INTEGER NOT NULL DEFAULT 0,
	warnings_generated INTEGER NOT NULL DEFAULT 0,
	warnings_sent INTEGER NOT NULL DEFAULT 0,
	warnings_exported INTEGER NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL DEFAULT '',
	initiated_by TEXT NOT NULL REFERENCES users (id),
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	admin_id TEXT,
	action TEXT NOT NULL,
	object_type TEXT NOT NULL,
	object_id TEXT,
	object_label TEXT NOT NULL DEFAULT '',
	details BYTEA,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chapel_services_date ON chapel_services (date)`,
	`CREATE INDEX IF NOT EXISTS idx_warning_workflows_status ON warning_workflows (status)`,
	`CREATE INDEX IF NOT EXISTS idx_warning_workflows_week ON warning_workflows (mode, start_date, end_date)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_object ON audit_logs (object_id, created_at)`,
}

func main() {
	var (
		adminEmail    string
		adminPassword string
		fixtures      bool
		timeout       time.Duration
	)

	flag.StringVar(&adminEmail, "admin-email", "chaplaincy@mtu.edu.ng", "email for the bootstrap superadmin")
	flag.StringVar(&adminPassword, "admin-password", "", "password for the bootstrap superadmin (required)")
	flag.BoolVar(&fixtures, "fixtures", false, "also insert demo students, chapel services and absentee artifacts")
	flag.DurationVar(&timeout, "timeout", 60*time.Second, "overall seed timeout")
	flag.Parse()

	if adminPassword == "" {
		log.Fatalf("missing required -admin-password")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if err := applySchema(ctx, db); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	log.Printf("schema ready")

	admin, err := ensureSuperAdmin(ctx, repository.NewUserRepository(db), adminEmail, adminPassword)
	if err != nil {
		log.Fatalf("failed to seed superadmin: %v", err)
	}
	log.Printf("superadmin %s (%s)", admin.Email, admin.ID)

	if !fixtures {
		log.Printf("seed complete")
		return
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open blob storage: %v", err)
	}

	if err := seedFixtures(ctx, db, cfg.Workflow.Levels, blobs); err != nil {
		log.Fatalf("failed to seed fixtures: %v", err)
	}
	log.Printf("seed complete")
}

func applySchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func ensureSuperAdmin(ctx context.Context, users *repository.UserRepository, email, password string) (*models.User, error) {
	existing, err := users.FindByEmail(ctx, email)
	if err == nil {
		log.Printf("superadmin already present, leaving untouched")
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	admin := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Chaplaincy Superadmin",
		Role:         models.RoleSuperAdmin,
		Active:       true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blobPutter, error) {
	if cfg.Storage.Backend == "s3" {
		return storage.NewS3Storage(ctx, storage.S3Options{
			Bucket:       cfg.Storage.Bucket,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
	}
	return storage.NewFileBlobStorage(cfg.Storage.LocalDir)
}

func seedFixtures(ctx context.Context, db *sqlx.DB, levels []string, blobs blobPutter) error {
	var existing int
	if err := db.GetContext(ctx, &existing, `SELECT COUNT(*) FROM students`); err != nil {
		return fmt.Errorf("count students: %w", err)
	}
	if existing > 0 {
		log.Printf("fixtures already present, skipping")
		return nil
	}

	students := demoStudents(levels)
	studentRepo := repository.NewStudentRepository(db)
	for i := range students {
		if err := studentRepo.Create(ctx, &students[i]); err != nil {
			return fmt.Errorf("insert student %s: %w", students[i].MatricNumber, err)
		}
	}
	log.Printf("inserted %d students", len(students))

	services := demoServices(weekStart(time.Now().UTC()))
	serviceRepo := repository.NewChapelServiceRepository(db)
	for i := range services {
		if err := serviceRepo.Create(ctx, &services[i]); err != nil {
			return fmt.Errorf("insert chapel service %s: %w", services[i].Label, err)
		}
	}
	log.Printf("inserted %d chapel services", len(services))

	written, err := writeAbsenteeArtifacts(ctx, blobs, services, students, levels)
	if err != nil {
		return err
	}
	log.Printf("wrote %d absentee artifacts", written)
	return nil
}

// weekStart returns the Monday of the week before the given time, so a
// weekly workflow over the seeded data covers only finished services.
func weekStart(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset-7)
}

func demoStudents(levels []string) []models.Student {
	names := []string{
		"Adaeze Okafor", "Tunde Balogun", "Chidinma Eze", "Ibrahim Musa",
		"Blessing Adeleke", "Emeka Nwosu", "Funmilayo Ajayi", "Samuel Oladipo",
		"Ngozi Umeh", "Yusuf Bello",
	}

	students := make([]models.Student, 0, len(names))
	for i, name := range names {
		lvlIdx := i / 2
		if lvlIdx >= len(levels) {
			lvlIdx = len(levels) - 1
		}
		email := fmt.Sprintf("%s@student.mtu.edu.ng", strings.ToLower(strings.ReplaceAll(name, " ", ".")))
		parent := fmt.Sprintf("parent.%04d@example.com", 231+i*7)
		students = append(students, models.Student{
			MatricNumber: fmt.Sprintf("%d/%04d", 23-lvlIdx, 231+i*7),
			FullName:     name,
			Level:        levels[lvlIdx],
			Email:        &email,
			ParentEmail:  &parent,
			Active:       true,
		})
	}
	return students
}

func demoServices(start time.Time) []models.ChapelService {
	var services []models.ChapelService
	for d := 0; d < 5; d++ {
		services = append(services, models.ChapelService{
			Date:   start.AddDate(0, 0, d),
			Label:  "Morning Devotion",
			Time:   "06:30",
			Type:   models.ServiceTypeDevotion,
			Active: true,
		})
	}
	services = append(services, models.ChapelService{
		Date:   start.AddDate(0, 0, 6),
		Label:  "Sunday Service",
		Time:   "09:00",
		Type:   models.ServiceTypeService,
		Active: true,
	})
	return services
}

// writeAbsenteeArtifacts marks the first student of every level pair
// absent from each devotion, enough misses to cross the default warning
// threshold. Sunday gets an empty list so full attendance is covered
// too.
func writeAbsenteeArtifacts(ctx context.Context, blobs blobPutter, services []models.ChapelService, students []models.Student, levels []string) (int, error) {
	byLevel := make(map[string][]models.Student, len(levels))
	for _, s := range students {
		byLevel[s.Level] = append(byLevel[s.Level], s)
	}

	written := 0
	for _, svc := range services {
		for _, level := range levels {
			absentees := []models.Absentee{}
			if svc.Type == models.ServiceTypeDevotion {
				for i, s := range byLevel[level] {
					if i%2 == 0 {
						absentees = append(absentees, models.Absentee{
							StudentID:    s.ID,
							MatricNumber: s.MatricNumber,
							StudentName:  s.FullName,
							Level:        s.Level,
						})
					}
				}
			}
			data, err := json.Marshal(absentees)
			if err != nil {
				return written, fmt.Errorf("marshal absentees: %w", err)
			}
			key := fmt.Sprintf("attendance/%s/%s/%s.json", svc.Date.Format("2006-01-02"), svc.ID, level)
			if err := blobs.Put(ctx, key, data, "application/json"); err != nil {
				return written, fmt.Errorf("write absentee artifact %s: %w", key, err)
			}
			written++
		}
	}
	return written, nil
}
