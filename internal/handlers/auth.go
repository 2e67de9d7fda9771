// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/acrispin/identity/internal/services/auth"
)

// AuthHandlers contains handlers for authentication.
type AuthHandlers struct {
	svc *auth.Service
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service) *AuthHandlers {
	return &AuthHandlers{svc: svc}
}

// Register wires the auth routes into the given group.
func (h *AuthHandlers) Register(g *echo.Group) {
	g.POST("/login", h.Login)
	g.POST("/register/email", h.RegisterEmail)
	g.POST("/register/google", h.RegisterGoogle)
	g.POST("/login/google-code", h.LoginGoogleCode)
	g.POST("/password-reset", h.RequestPasswordReset)
	g.POST("/password-reset/confirm", h.ConfirmPasswordReset)
	g.GET("/verify-email/:token", h.VerifyEmail)

	protected := g.Group("", RequireAuth(h.svc.TokenIssuer()))
	protected.GET("/me", h.GetMe)
	protected.PUT("/me", h.UpdateMe)
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with email and password and returns an access token.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password are required"})
	}

	result, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// RegisterEmailRequest is the request body for email registration.
type RegisterEmailRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	CountryID *int64 `json:"country_id,omitempty"`
}

// RegisterEmail registers a new account. A verification email is sent and
// the account stays inactive until it is redeemed.
func (h *AuthHandlers) RegisterEmail(c echo.Context) error {
	var req RegisterEmailRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	user, err := h.svc.RegisterWithEmail(c.Request().Context(), auth.RegisterParams{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		CountryID: req.CountryID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// GoogleCodeRequest carries the authorization code from the frontend OAuth
// flow.
type GoogleCodeRequest struct {
	Code string `json:"code"`
}

// LoginGoogleCode exchanges a Google authorization code and logs in,
// creating or linking an account as needed.
func (h *AuthHandlers) LoginGoogleCode(c echo.Context) error {
	var req GoogleCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code is required"})
	}

	result, err := h.svc.LoginWithGoogleCode(c.Request().Context(), req.Code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GoogleIDTokenRequest carries a Google-issued ID token assertion.
type GoogleIDTokenRequest struct {
	IDToken string `json:"id_token"`
}

// RegisterGoogle verifies a Google ID token and logs in, creating or
// linking an account as needed.
func (h *AuthHandlers) RegisterGoogle(c echo.Context) error {
	var req GoogleIDTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.IDToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "id_token is required"})
	}

	result, err := h.svc.LoginWithGoogleIDToken(c.Request().Context(), req.IDToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// PasswordResetRequest is the request body for requesting a reset email.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset issues a reset token and emails it. The response is
// identical whether or not the email is registered.
func (h *AuthHandlers) RequestPasswordReset(c echo.Context) error {
	var req PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password reset email sent if user exists"})
}

// PasswordResetConfirm is the request body for confirming a reset.
type PasswordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ConfirmPasswordReset redeems a reset token and stores the new password.
func (h *AuthHandlers) ConfirmPasswordReset(c echo.Context) error {
	var req PasswordResetConfirm
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if err := h.svc.ConfirmPasswordReset(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password successfully reset"})
}

// VerifyEmail redeems an activation token from the emailed link.
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	token := c.Param("token")

	if err := h.svc.VerifyEmail(c.Request().Context(), token); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "account successfully activated"})
}

// GetMe returns the authenticated user's profile.
func (h *AuthHandlers) GetMe(c echo.Context) error {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return writeError(c, auth.ErrUnauthorized)
	}
	userID, err := claims.UserID()
	if err != nil {
		return writeError(c, auth.ErrUnauthorized)
	}

	profile, err := h.svc.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// UpdateMeRequest carries the profile fields to change; omitted fields are
// left untouched. Email and password cannot be changed here.
type UpdateMeRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	CountryID *int64  `json:"country_id,omitempty"`
}

// UpdateMe merges the provided fields into the authenticated user's profile.
func (h *AuthHandlers) UpdateMe(c echo.Context) error {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return writeError(c, auth.ErrUnauthorized)
	}
	userID, err := claims.UserID()
	if err != nil {
		return writeError(c, auth.ErrUnauthorized)
	}

	var req UpdateMeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	profile, err := h.svc.UpdateProfile(c.Request().Context(), userID, auth.UpdateProfileParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		CountryID: req.CountryID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}
