package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core/user"
)

const (
	userColumns = `id, family_id, name, email, role, is_active, password_hash, created_at, updated_at, last_login`

	insertUser = `INSERT INTO "user" (` + userColumns + `)
		VALUES (:id, :family_id, :name, :email, :role, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func insertUserErr(err error) error {
	if pqCode(err) == uniqueViolation {
		return user.ErrEmailExists
	}
	return errors.Wrap(err, "inserting user")
}

func (repo *userRepository) CreateFamily(ctx context.Context, fam user.Family, parent user.User) (user.Family, user.User, error) {
	fam.ID = newID()
	parent.ID = newID()
	parent.FamilyID = fam.ID
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO family (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`, fam)
		if err != nil {
			return errors.Wrap(err, "inserting family")
		}
		if _, err = tx.NamedExecContext(ctx, insertUser, parent); err != nil {
			return insertUserErr(err)
		}
		return nil
	})
	if err != nil {
		return user.Family{}, user.User{}, err
	}
	return fam, parent, nil
}

func (repo *userRepository) GetFamily(ctx context.Context, id string) (user.Family, error) {
	if !validID(id) {
		return user.Family{}, user.ErrFamilyNotFound
	}
	var fam user.Family
	err := repo.db.GetContext(ctx, &fam, `SELECT id, name, created_at, updated_at FROM family WHERE id = $1`, id)
	if err != nil {
		return user.Family{}, trapNoRows(err, user.ErrFamilyNotFound, "getting family")
	}
	return fam, nil
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string) error {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM "user" WHERE lower(email) = lower($1))`, email)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	if _, err := repo.db.NamedExecContext(ctx, insertUser, usr); err != nil {
		if pqCode(err) == foreignKeyViolation {
			return user.User{}, user.ErrFamilyNotFound
		}
		return user.User{}, insertUserErr(err)
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	w := new(where)
	if filter.ID != "" {
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	}
	if filter.Email != "" {
		w.add("lower(email) = lower(?)", filter.Email)
	}
	if len(w.conds) == 0 {
		return user.User{}, user.ErrNotFound
	}

	var usr user.User
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "user"` + w.String())
	if err := repo.db.GetContext(ctx, &usr, q, w.args...); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "getting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	w := new(where)
	w.add("family_id = ?", filter.FamilyID)
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		w.add("role = ANY(?)", pq.Array(roles))
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}

	users := make([]user.User, 0)
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "user"` + w.String() + ` ORDER BY created_at, name`)
	if err := repo.db.SelectContext(ctx, &users, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.db.NamedExecContext(ctx, `UPDATE "user"
		SET name = :name, is_active = :is_active, password_hash = :password_hash,
		    last_login = :last_login, updated_at = :updated_at
		WHERE id = :id`, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}
