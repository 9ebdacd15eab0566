// Package dummydb is an in-memory implementation of the repositories, used by tests and local runs.
// Nothing is persisted.
package dummydb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/homeschool/core/activity"
	"github.com/trezcool/homeschool/core/assignment"
	"github.com/trezcool/homeschool/core/goal"
	"github.com/trezcool/homeschool/core/student"
	"github.com/trezcool/homeschool/core/subject"
	"github.com/trezcool/homeschool/core/user"
)

// DB holds every table behind one lock so that multi-table writes are atomic.
type DB struct {
	sync.RWMutex

	families      map[string]*user.Family
	users         map[string]*user.User
	students      map[string]*student.Student
	subjects      map[string]*subject.Subject
	assignments   map[string]*assignment.Assignment
	goals         map[string]*goal.Goal
	comments      []activity.Comment
	logs          []activity.Log
	notifications []*activity.Notification

	// FailNextWrite makes the next multi-row write fail, as a database error would. Tests only.
	FailNextWrite error
}

func Open() *DB {
	return &DB{
		families:    make(map[string]*user.Family),
		users:       make(map[string]*user.User),
		students:    make(map[string]*student.Student),
		subjects:    make(map[string]*subject.Subject),
		assignments: make(map[string]*assignment.Assignment),
		goals:       make(map[string]*goal.Goal),
	}
}

func newID() string { return uuid.New().String() }

// takeFailure returns and resets FailNextWrite. Callers hold the lock.
func (db *DB) takeFailure() error {
	err := db.FailNextWrite
	db.FailNextWrite = nil
	return err
}

// Counts returns the number of rows per table. Tests only.
func (db *DB) Counts() map[string]int {
	db.RLock()
	defer db.RUnlock()
	return map[string]int{
		"families":      len(db.families),
		"users":         len(db.users),
		"students":      len(db.students),
		"subjects":      len(db.subjects),
		"assignments":   len(db.assignments),
		"goals":         len(db.goals),
		"comments":      len(db.comments),
		"logs":          len(db.logs),
		"notifications": len(db.notifications),
	}
}
