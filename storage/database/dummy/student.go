package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/homeschool/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

// linked reports whether another profile is linked to userID. Callers hold the lock.
func (repo *studentRepository) linked(userID, excludedID string) bool {
	for _, std := range repo.db.students {
		if std.UserID.Valid && std.UserID.String == userID && std.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if std.UserID.Valid && repo.linked(std.UserID.String, "") {
		return student.Student{}, student.ErrUserLinked
	}
	std.ID = newID()
	repo.db.students[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, familyID, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.db.students[id]; ok && std.FamilyID == familyID {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) GetStudentByUser(_ context.Context, familyID, userID string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, std := range repo.db.students {
		if std.FamilyID == familyID && std.UserID.Valid && std.UserID.String == userID {
			return *std, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudents(_ context.Context, familyID string) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]student.Student, 0)
	for _, std := range repo.db.students {
		if std.FamilyID == familyID {
			students = append(students, *std)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		return strings.ToLower(students[i].Name) < strings.ToLower(students[j].Name)
	})
	return students, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.students[std.ID]
	if !ok || orig.FamilyID != std.FamilyID {
		return student.Student{}, student.ErrNotFound
	}
	if std.UserID.Valid && repo.linked(std.UserID.String, std.ID) {
		return student.Student{}, student.ErrUserLinked
	}
	orig.Name = std.Name
	orig.GradeLevel = std.GradeLevel
	orig.UserID = std.UserID
	orig.UpdatedAt = std.UpdatedAt
	return *orig, nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, familyID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	std, ok := repo.db.students[id]
	if !ok || std.FamilyID != familyID {
		return student.ErrNotFound
	}
	for _, a := range repo.db.assignments {
		if a.StudentID == id {
			return student.ErrHasAssignments
		}
	}
	for gid, g := range repo.db.goals {
		if g.StudentID == id {
			delete(repo.db.goals, gid)
		}
	}
	delete(repo.db.students, id)
	return nil
}
