package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ferrington/bug-wars-client/internal/api/middleware"
	"github.com/Ferrington/bug-wars-client/internal/core/domain"
	"github.com/Ferrington/bug-wars-client/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type updateProfileRequest struct {
	Username string `json:"username,omitempty" validate:"omitempty,max=32"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password,omitempty"`
}

type userResponse struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func toUserResponse(a *domain.Account) userResponse {
	u := a.Identity()
	return userResponse{Username: u.Username, Roles: u.Roles}
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

// Register creates a new account. It does not log the caller in.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request payload.")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(err.Error())
	}

	account, err := h.authService.Register(c.Request().Context(), domain.RegisterDTO{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if errors.Is(err, domain.ErrInvalidCredentials) {
		return badRequest("All fields are required.")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toUserResponse(account))
}

// Login authenticates a user and returns an access/refresh token pair.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  domain.LoginResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request payload.")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest("Username and Password cannot be blank.")
	}

	account, tokens, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrUserNotFound) {
		// Unknown user and wrong password look the same from outside.
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password.")
	}
	if err != nil {
		return err
	}

	u := account.Identity()
	return c.JSON(http.StatusOK, domain.LoginResponse{
		Username:     u.Username,
		Roles:        u.Roles,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

// RefreshToken exchanges a refresh token for a new access token.
//
// @Summary      Refresh access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  domain.RefreshResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request payload.")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(err.Error())
	}

	access, err := h.authService.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, domain.RefreshResponse{AccessToken: access})
}

// Logout revokes the caller's refresh tokens when a valid bearer is sent.
// It always answers 204.
//
// @Summary      Logout
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if sub, _ := c.Get(middleware.KeySubject).(string); sub != "" {
		if err := h.authService.Logout(c.Request().Context(), sub); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateProfile changes the caller's username, email or password.
//
// @Summary      Update profile
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      updateProfileRequest  true  "Fields to change"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/update-profile [put]
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	sub, err := ctxSubject(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request payload.")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(err.Error())
	}
	if req == (updateProfileRequest{}) {
		return badRequest("Nothing to update.")
	}

	account, err := h.authService.UpdateProfile(c.Request().Context(), sub, domain.ProfileUpdateDTO{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(account))
}

// Me returns the caller's identity.
//
// @Summary      Current user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200   {object}  userResponse
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	sub, err := ctxSubject(c)
	if err != nil {
		return err
	}

	account, err := h.authService.Me(c.Request().Context(), sub)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(account))
}
