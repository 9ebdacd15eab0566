package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeschool/core"
	"github.com/trezcool/homeschool/core/user"
)

type userApi struct {
	svc      *user.Service
	tokens   *tokenIssuer
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, tokens *tokenIssuer, svc *user.Service, validate *validator.Validate) {
	api := userApi{
		svc:      svc,
		tokens:   tokens,
		validate: validate,
	}

	// un-authed endpoints
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset-confirm`
	ag := g.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, authed...)
	ag.GET("/me", api.me, authed...)
	g.GET("/family", api.family, authed...)

	ug := g.Group("/users", authed...)
	ug.GET("", api.query, managerMiddleware())
	ug.POST("", api.create, managerMiddleware())
	ug.GET("/:id", api.retrieve)
	ug.PUT("/:id", api.update)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewFamily
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	fam, usr, err := api.svc.RegisterFamily(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering family")
	}
	token, err := api.tokens.tokenFor(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, RegisterResponse{Family: fam, User: usr, Token: token})
}

func (api *userApi) login(ctx echo.Context) error {
	var data user.LoginRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.tokens.tokenFor(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: usr})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if !(err == nil || core.IsNotFound(err) || err == user.ErrAccountDeactivated) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ConfirmPasswordReset(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.tokens.refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	usr, _ := getContextUser(ctx)
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: usr})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) family(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	fam, err := api.svc.GetFamily(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "getting family")
	}
	return ctx.JSON(http.StatusOK, fam)
}

func (api *userApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var roles []core.Role
	for _, r := range ctx.QueryParams()["role"] {
		if role := core.Role(core.CleanString(r)); role.IsValid() {
			roles = append(roles, role)
		}
	}

	users, err := api.svc.List(ctx.Request().Context(), actor, roles...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data user.NewUser
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// object returns the user of the path, denying students access to other users.
func (api *userApi) object(ctx echo.Context) (core.Actor, user.User, error) {
	actor, err := getContextActor(ctx)
	if err != nil {
		return core.Actor{}, user.User{}, err
	}
	id := ctx.Param("id")
	if !actor.Role.CanManage() && id != actor.UserID {
		return core.Actor{}, user.User{}, user.ErrNotFound
	}
	usr, err := api.svc.GetInFamily(ctx.Request().Context(), actor, id)
	if err != nil {
		return core.Actor{}, user.User{}, errors.Wrap(err, "finding user")
	}
	return actor, usr, nil
}

func (api *userApi) retrieve(ctx echo.Context) error {
	_, usr, err := api.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	actor, usr, err := api.object(ctx)
	if err != nil {
		return err
	}
	var data user.UpdateUser
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate, usr); err != nil {
		return err
	}

	usr, err = api.svc.Update(ctx.Request().Context(), actor, usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

type (
	RegisterResponse struct {
		Family user.Family `json:"family"`
		User   user.User   `json:"user"`
		Token  string      `json:"token"`
	}

	LoginResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
