package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/student"
)

const studentColumns = `id, family_id, name, grade_level, user_id, created_at, updated_at`

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	std.ID = newID()
	_, err := repo.db.NamedExecContext(ctx, `INSERT INTO student (`+studentColumns+`)
		VALUES (:id, :family_id, :name, :grade_level, :user_id, :created_at, :updated_at)`, std)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return student.Student{}, student.ErrUserLinked
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, familyID, id string) (student.Student, error) {
	if !validID(id) {
		return student.Student{}, student.ErrNotFound
	}
	var std student.Student
	err := repo.db.GetContext(ctx, &std, `SELECT `+studentColumns+` FROM student WHERE family_id = $1 AND id = $2`, familyID, id)
	if err != nil {
		return student.Student{}, trapNoRows(err, student.ErrNotFound, "getting student")
	}
	return std, nil
}

func (repo *studentRepository) GetStudentByUser(ctx context.Context, familyID, userID string) (student.Student, error) {
	if !validID(userID) {
		return student.Student{}, student.ErrNotFound
	}
	var std student.Student
	err := repo.db.GetContext(ctx, &std, `SELECT `+studentColumns+` FROM student WHERE family_id = $1 AND user_id = $2`, familyID, userID)
	if err != nil {
		return student.Student{}, trapNoRows(err, student.ErrNotFound, "getting student by user")
	}
	return std, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, familyID string) ([]student.Student, error) {
	students := make([]student.Student, 0)
	err := repo.db.SelectContext(ctx, &students, `SELECT `+studentColumns+` FROM student WHERE family_id = $1 ORDER BY lower(name)`, familyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	res, err := repo.db.NamedExecContext(ctx, `UPDATE student
		SET name = :name, grade_level = :grade_level, user_id = :user_id, updated_at = :updated_at
		WHERE family_id = :family_id AND id = :id`, std)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return student.Student{}, student.ErrUserLinked
		}
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return repo.GetStudent(ctx, std.FamilyID, std.ID)
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, familyID, id string) error {
	if !validID(id) {
		return student.ErrNotFound
	}
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var count int
		if err := tx.GetContext(ctx, &count, `SELECT count(*) FROM assignment WHERE student_id = $1`, id); err != nil {
			return errors.Wrap(err, "counting assignments")
		}
		if count > 0 {
			return student.ErrHasAssignments
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM student WHERE family_id = $1 AND id = $2`, familyID, id)
		if err != nil {
			if pqCode(err) == foreignKeyViolation {
				return student.ErrHasAssignments
			}
			return errors.Wrap(err, "deleting student")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return student.ErrNotFound
		}
		return nil
	})
}
