// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	ctxauth "codeberg.org/oliverandrich/creatorhub/internal/auth"
	"codeberg.org/oliverandrich/creatorhub/internal/i18n"
	"codeberg.org/oliverandrich/creatorhub/internal/models"
	"codeberg.org/oliverandrich/creatorhub/internal/services/auth"
	"codeberg.org/oliverandrich/creatorhub/internal/services/email"
	"github.com/labstack/echo/v4"
)

// UserResponse is the public view of an account.
type UserResponse struct {
	ID                 int64       `json:"id"`
	Username           string      `json:"username"`
	Email              string      `json:"email"`
	Phone              string      `json:"phone,omitempty"`
	Role               models.Role `json:"role"`
	IsEmailVerified    bool        `json:"isEmailVerified"`
	IsManuallyVerified bool        `json:"isManuallyVerified"`
	CreatedAt          time.Time   `json:"createdAt"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		Phone:              u.PhoneNumber(),
		Role:               u.Role,
		IsEmailVerified:    u.IsEmailVerified,
		IsManuallyVerified: u.IsManuallyVerified,
		CreatedAt:          u.CreatedAt,
	}
}

// RegisterResponse is returned by Register.
type RegisterResponse struct {
	Success              bool               `json:"success"`
	Message              string             `json:"message"`
	RequiresVerification bool               `json:"requiresVerification"`
	Delivery             email.DeliveryMode `json:"delivery"`
	EmailSent            bool               `json:"emailSent"`
	User                 UserResponse       `json:"user"`
}

// SessionResponse is returned by Login and Verify.
type SessionResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// MessageResponse is a success with a human-readable message.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type loginRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Password     string `json:"password"`
}

type resendRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
}

// Register creates an account and sends the verification code.
func (h *Handlers) Register(c echo.Context) error {
	var params auth.RegisterParams
	if err := c.Bind(&params); err != nil {
		return invalidBody(c)
	}

	ctx := c.Request().Context()
	result, err := h.auth.Register(ctx, params)
	if err != nil {
		return fail(c, err)
	}

	message := i18n.T(ctx, "register_success")
	switch {
	case result.DeliveryErr != nil:
		message = i18n.T(ctx, "register_email_failed")
	case result.Delivery.Mode == email.Logged:
		message = i18n.T(ctx, "register_demo")
	}

	return c.JSON(http.StatusCreated, RegisterResponse{
		Success:              true,
		Message:              message,
		RequiresVerification: true,
		Delivery:             result.Delivery.Mode,
		EmailSent:            result.Delivery.Sent(),
		User:                 newUserResponse(result.User),
	})
}

// Login issues a session token for a verified account.
func (h *Handlers) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	ctx := c.Request().Context()
	session, err := h.auth.Login(ctx, req.EmailOrPhone, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(session, i18n.T(ctx, "login_success")))
}

// ResendVerification replaces the pending code and mails it again.
func (h *Handlers) ResendVerification(c echo.Context) error {
	var req resendRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	ctx := c.Request().Context()
	delivery, err := h.auth.ResendVerification(ctx, req.Email)
	if err != nil {
		return fail(c, err)
	}

	message := i18n.T(ctx, "resend_success")
	if delivery.Mode == email.Logged {
		message = i18n.T(ctx, "resend_demo")
	}
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: message})
}

// Verify consumes a verification code and logs the user in.
func (h *Handlers) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}

	ctx := c.Request().Context()
	session, err := h.auth.Verify(ctx, req.Email, req.Code)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(session, i18n.T(ctx, "verify_success")))
}

// Me returns the account behind the bearer token.
func (h *Handlers) Me(c echo.Context) error {
	ctx := c.Request().Context()
	claims := ctxauth.GetClaims(ctx)
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}

	user, err := h.auth.CurrentUser(ctx, claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    newUserResponse(user),
	})
}

func newSessionResponse(s *auth.Session, message string) SessionResponse {
	return SessionResponse{
		Success:   true,
		Message:   message,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      newUserResponse(s.User),
	}
}
