package models

// Levels enumerates the academic levels scanned per service. Absentee
// blobs are partitioned by level, so the collector fans out one read
// per entry.
var Levels = []string{"100", "200", "300", "400", "500"}

// Absentee is one row of a per-level absentee blob produced upstream
// by the attendance scanning pipeline.
type Absentee struct {
	StudentID    string `json:"student_id"`
	MatricNumber string `json:"matric_number"`
	StudentName  string `json:"student_name"`
	Level        string `json:"level"`
}

// MergedAbsentee accumulates every service a student missed across the
// collected combinations. One entry per student, however many services
// and levels they appeared in.
type MergedAbsentee struct {
	StudentID    string          `json:"student_id"`
	MatricNumber string          `json:"matric_number"`
	StudentName  string          `json:"student_name"`
	Level        string          `json:"level"`
	Services     []MissedService `json:"services"`
}
