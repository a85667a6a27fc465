package store

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS classrooms (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		department TEXT NOT NULL,
		year INT NOT NULL,
		semester INT NOT NULL,
		section TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		role TEXT NOT NULL CHECK (role IN ('student', 'faculty', 'admin')),
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		student_number TEXT UNIQUE,
		department TEXT,
		year INT,
		semester INT,
		section TEXT,
		classroom_id UUID REFERENCES classrooms(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS classroom_assignments (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		classroom_id UUID NOT NULL REFERENCES classrooms(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id UUID PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		department TEXT,
		semester INT,
		faculty_id UUID REFERENCES users(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id UUID PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES users(id),
		course_id UUID REFERENCES courses(id),
		date DATE NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('present', 'absent', 'late')),
		marked_by UUID NOT NULL REFERENCES users(id),
		marked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		notes TEXT
	)`,
	`DROP INDEX IF EXISTS attendance_mark_key`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_faculty_key ON attendance
		(student_id, date, marked_by) WHERE course_id IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_course_key ON attendance
		(student_id, date, course_id) WHERE course_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS attendance_marked_by_date ON attendance (marked_by, date)`,
	`CREATE INDEX IF NOT EXISTS attendance_date ON attendance (date)`,
	`CREATE INDEX IF NOT EXISTS users_classroom ON users (department, year, semester, section) WHERE role = 'student'`,
}

// Migrate creates the portal tables and indexes when they are missing. It is
// safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migrate: %w", err)
	}
	defer tx.Rollback()
	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return tx.Commit()
}
