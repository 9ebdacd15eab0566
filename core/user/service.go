package user

import (
	"context"
	"errors"
	"net/mail"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/homeschool/core"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user")
	ErrFamilyNotFound       = core.NewNotFoundError("family")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrAuthenticationFailed = errors.New("invalid credentials")
	ErrAccountDeactivated   = errors.New("account deactivated")
)

type (
	Repository interface {
		// CreateFamily creates the family and its first parent in one transaction.
		CreateFamily(ctx context.Context, fam Family, parent User) (Family, User, error)
		GetFamily(ctx context.Context, id string) (Family, error)
		CheckEmailUniqueness(ctx context.Context, email string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		tokens  tokenGenerator
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, tokens: newTokenGenerator(conf)}
}

func (svc *Service) checkUniqueness(email string) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// RegisterFamily creates a family along with its first parent.
func (svc *Service) RegisterFamily(ctx context.Context, nf NewFamily) (Family, User, error) {
	now := core.NowFunc()
	fam := Family{Name: nf.FamilyName, CreatedAt: now, UpdatedAt: now}
	parent := User{
		Name:      nf.ParentName,
		Email:     nf.Email,
		Role:      core.RoleParent,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := parent.SetPassword(nf.Password); err != nil {
		return Family{}, User{}, err
	}
	return svc.repo.CreateFamily(ctx, fam, parent)
}

func (svc *Service) GetFamily(ctx context.Context, actor core.Actor) (Family, error) {
	return svc.repo.GetFamily(ctx, actor.FamilyID)
}

// Create adds a user to the actor's family. Only parents may add users.
func (svc *Service) Create(ctx context.Context, actor core.Actor, nu NewUser) (User, error) {
	if err := actor.RequireManager(); err != nil {
		return User{}, err
	}
	if nu.Role == core.RoleSuperAdmin && actor.Role != core.RoleSuperAdmin {
		return User{}, core.NewPermissionError("not enough rights to set this role")
	}
	return svc.create(ctx, actor.FamilyID, nu)
}

// CreateInFamily adds a user to any family. Used by operator tooling.
func (svc *Service) CreateInFamily(ctx context.Context, familyID string, nu NewUser) (User, error) {
	if _, err := svc.repo.GetFamily(ctx, familyID); err != nil {
		return User{}, err
	}
	return svc.create(ctx, familyID, nu)
}

func (svc *Service) create(ctx context.Context, familyID string, nu NewUser) (User, error) {
	now := core.NowFunc()
	usr := User{
		FamilyID:  familyID,
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// GetInFamily returns a user of the actor's family.
func (svc *Service) GetInFamily(ctx context.Context, actor core.Actor, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !actor.OwnsFamily(usr.FamilyID) {
		return User{}, ErrNotFound
	}
	return usr, nil
}

// List returns the users of the actor's family.
func (svc *Service) List(ctx context.Context, actor core.Actor, roles ...core.Role) ([]User, error) {
	return svc.repo.QueryUsers(ctx, QueryFilter{FamilyID: actor.FamilyID, Roles: roles})
}

// Parents returns the active parents of a family.
func (svc *Service) Parents(ctx context.Context, familyID string) ([]User, error) {
	active := true
	return svc.repo.QueryUsers(ctx, QueryFilter{FamilyID: familyID, Roles: []core.Role{core.RoleParent}, IsActive: &active})
}

// Update modifies a user of the actor's family.
// Parents may update anyone in their family; other users may only update themselves and never their status.
func (svc *Service) Update(ctx context.Context, actor core.Actor, usr User, uu UpdateUser) (User, error) {
	if !actor.OwnsFamily(usr.FamilyID) {
		return User{}, ErrNotFound
	}
	if !actor.Role.CanManage() && (usr.ID != actor.UserID || uu.IsActive != nil) {
		return User{}, core.NewPermissionError("")
	}
	if uu.Name != nil {
		usr.Name = *uu.Name
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

// Authenticate checks the credentials of an active user and records the login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, err
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	return svc.SetLastLogin(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(core.NowFunc())
	return svc.repo.UpdateUser(ctx, usr)
}

// ResetPassword sets a new password on the user with the given email.
func (svc *Service) ResetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = core.NowFunc()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// RequestPasswordReset emails a password reset link to the active user with the given email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrAccountDeactivated
	}
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		return err
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"RecipientName": usr.Name,
			"UID":           EncodeUID(usr),
			"Token":         token,
		},
	})
	return nil
}

// ConfirmPasswordReset sets the new password of the user a valid reset token was issued to.
func (svc *Service) ConfirmPasswordReset(ctx context.Context, rp ResetUserPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(ErrInvalidToken)
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(ErrInvalidToken)
		}
		return err
	}
	if err = svc.tokens.verifyToken(usr, rp.Token); err != nil {
		if err == ErrInvalidToken || err == errTokenExpired {
			return core.NewValidationError(ErrInvalidToken)
		}
		return err
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return err
	}
	usr.UpdatedAt = core.NowFunc()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}
