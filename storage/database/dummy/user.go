package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateFamily(_ context.Context, fam user.Family, parent user.User) (user.Family, user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.db.takeFailure(); err != nil {
		return user.Family{}, user.User{}, err
	}
	if repo.emailExists(parent.Email) {
		return user.Family{}, user.User{}, user.ErrEmailExists
	}
	fam.ID = newID()
	repo.db.families[fam.ID] = &fam
	parent.ID = newID()
	parent.FamilyID = fam.ID
	repo.db.users[parent.ID] = &parent
	return fam, parent, nil
}

func (repo *userRepository) GetFamily(_ context.Context, id string) (user.Family, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if fam, ok := repo.db.families[id]; ok {
		return *fam, nil
	}
	return user.Family{}, user.ErrFamilyNotFound
}

// emailExists is case-insensitive. Callers hold the lock.
func (repo *userRepository) emailExists(email string) bool {
	email = core.CleanString(email, true)
	for _, usr := range repo.db.users {
		if core.CleanString(usr.Email, true) == email {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if repo.emailExists(email) {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.families[usr.FamilyID]; !ok {
		return user.User{}, user.ErrFamilyNotFound
	}
	if repo.emailExists(usr.Email) {
		return user.User{}, user.ErrEmailExists
	}
	usr.ID = newID()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		usr, ok := repo.db.users[filter.ID]
		if !ok || (filter.Email != "" && usr.Email != filter.Email) {
			return user.User{}, user.ErrNotFound
		}
		return *usr, nil
	}
	if filter.Email != "" {
		email := core.CleanString(filter.Email, true)
		for _, usr := range repo.db.users {
			if core.CleanString(usr.Email, true) == email {
				return *usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.db.users {
		if usr.FamilyID != filter.FamilyID {
			continue
		}
		if len(filter.Roles) > 0 && !hasRole(filter.Roles, usr.Role) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		users = append(users, *usr)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].Name < users[j].Name
	})
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	orig.Name = usr.Name
	orig.IsActive = usr.IsActive
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	orig.LastLogin = usr.LastLogin
	orig.UpdatedAt = usr.UpdatedAt
	return *orig, nil
}

func hasRole(roles []core.Role, role core.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
