// Package storage reads a family task database. The database belongs to
// the task app; this package never writes to it.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Task priorities as stored in the database.
const (
	PriorityUrgent  = "urgent"
	PriorityWeek    = "week"
	PrioritySomeday = "someday"
)

type Task struct {
	ID          int64
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
	DoneAt      *time.Time
}

func (t *Task) IsDone() bool {
	return t.DoneAt != nil
}

type Storage struct {
	db *sql.DB
}

// Open opens an existing database read-only.
func Open(dbPath string) (*Storage, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// ListDatedTasks returns the tasks with a due date. Finished tasks are
// included only when they were finished at or after doneSince. Times are
// stored in UTC so they compare as text.
func (s *Storage) ListDatedTasks(doneSince time.Time) ([]*Task, error) {
	rows, err := s.db.Query(
		`SELECT id, title, COALESCE(description, ''), COALESCE(priority, 'someday'), due_date, done_at
		 FROM tasks
		 WHERE due_date IS NOT NULL AND (done_at IS NULL OR done_at >= ?)
		 ORDER BY due_date,
			CASE priority WHEN 'urgent' THEN 1 WHEN 'week' THEN 2 ELSE 3 END`,
		doneSince.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.DueDate, &t.DoneAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
