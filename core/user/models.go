package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/homeschool/core"
)

// Family is the tenant: one household's parents, students and data.
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type User struct {
	ID           string    `json:"id"`
	FamilyID     string    `json:"family_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         core.Role `json:"role"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsParent() bool  { return u.Role == core.RoleParent }
func (u User) IsStudent() bool { return u.Role == core.RoleStudent }

// Actor returns the request actor for this user.
func (u User) Actor() core.Actor {
	return core.Actor{
		UserID:   u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		FamilyID: u.FamilyID,
	}
}

// NewFamily contains information needed to register a family with its first parent.
type NewFamily struct {
	FamilyName      string `json:"family_name" validate:"required,notblank"`
	ParentName      string `json:"parent_name" validate:"required,notblank"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nf *NewFamily) Validate(validate *validator.Validate, svc *Service) error {
	nf.FamilyName = core.CleanString(nf.FamilyName)
	nf.ParentName = core.CleanString(nf.ParentName)
	nf.Email = core.CleanString(nf.Email, true /* lower */)

	if err := validate.Struct(nf); err != nil {
		return err
	}
	return svc.checkUniqueness(nf.Email)
}

// NewUser contains information needed to add a User to a family.
type NewUser struct {
	Name            string    `json:"name" validate:"required,notblank"`
	Email           string    `json:"email" validate:"required,email"`
	Role            core.Role `json:"role" validate:"required,role"`
	Password        string    `json:"password" validate:"required"`
	PasswordConfirm string    `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.Role(core.CleanString(string(nu.Role)))

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            *string `json:"name" validate:"omitempty,notblank"`
	IsActive        *bool   `json:"is_active"`
	Password        string  `json:"password" validate:"omitempty"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`

	// set by Validate; used by the password policy
	email string
}

func (uu *UpdateUser) Validate(validate *validator.Validate, origUsr User) error {
	uu.Name = core.CleanStringPtr(uu.Name)
	uu.email = origUsr.Email
	return validate.Struct(uu)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

// ResetUserPassword completes a password reset requested by email.
type ResetUserPassword struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.UID = core.CleanString(rp.UID)
	rp.Token = core.CleanString(rp.Token)
	return validate.Struct(rp)
}

// GetFilter selects one user; the first set field wins.
type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	FamilyID string
	Roles    []core.Role
	IsActive *bool
}
