// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/creatorhub/internal/repository"
	"codeberg.org/oliverandrich/creatorhub/internal/services/auth"
	"codeberg.org/oliverandrich/creatorhub/internal/services/instagram"
	"codeberg.org/oliverandrich/creatorhub/internal/services/oauthstate"
	"codeberg.org/oliverandrich/creatorhub/internal/validator"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success              bool              `json:"success"`
	Error                string            `json:"error"`
	Fields               map[string]string `json:"fields,omitempty"`
	RequiresVerification bool              `json:"requiresVerification,omitempty"`
	Troubleshooting      []string          `json:"troubleshooting,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{auth.ErrDuplicateAccount, http.StatusConflict, "An account with this email or phone number already exists"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
	{auth.ErrRequiresVerification, http.StatusForbidden, "Please verify your email address before logging in"},
	{auth.ErrUserNotFound, http.StatusNotFound, "No account found for this email address"},
	{auth.ErrAlreadyVerified, http.StatusConflict, "This email address is already verified"},
	{auth.ErrNoPendingCode, http.StatusBadRequest, "No pending verification code for this email address"},
	{auth.ErrCodeExpired, http.StatusBadRequest, "Verification code has expired, please request a new one"},
	{auth.ErrCodeMismatch, http.StatusBadRequest, "Invalid verification code"},
	{auth.ErrTooManyRequests, http.StatusTooManyRequests, "A verification code was sent recently, please wait before requesting another"},
	{auth.ErrEmailDelivery, http.StatusBadGateway, "Verification email could not be sent, please try again later"},
	{oauthstate.ErrMissingState, http.StatusBadRequest, "OAuth state cookie is missing or expired"},
	{oauthstate.ErrStateMismatch, http.StatusBadRequest, "OAuth state does not match"},
}

// toResponse maps an error to its status code and body.
func toResponse(err error) (int, ErrorResponse) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: verr.Fields}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			resp := ErrorResponse{Error: m.message}
			if errors.Is(err, auth.ErrRequiresVerification) {
				resp.RequiresVerification = true
			}
			var dup *repository.DuplicateError
			if errors.As(err, &dup) && dup.Field != "" {
				resp.Fields = map[string]string{dup.Field: "Already registered"}
			}
			return m.status, resp
		}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"}
}

// fail writes err as a JSON error response.
func fail(c echo.Context, err error) error {
	status, resp := toResponse(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.JSON(status, resp)
}

// oauthFailure writes a 500 with hints for the caller.
func oauthFailure(c echo.Context, err error, troubleshooting []string) error {
	slog.Error("instagram_oauth_failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:           oauthMessage(err),
		Troubleshooting: troubleshooting,
	})
}

func oauthMessage(err error) string {
	var pe *instagram.ProviderError
	switch {
	case errors.Is(err, instagram.ErrNotConfigured):
		return "Instagram OAuth is not configured on this server"
	case errors.As(err, &pe) && pe.Message != "":
		return pe.Message
	case errors.Is(err, instagram.ErrExchangeFailed):
		return "Failed to exchange authorization code"
	case errors.Is(err, instagram.ErrRefreshFailed):
		return "Failed to refresh access token"
	case errors.Is(err, instagram.ErrTokenValidationFailed):
		return "Failed to validate access token"
	default:
		return "Instagram request failed"
	}
}

// HTTPErrorHandler renders errors that escape handlers and middleware as JSON.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	var status int
	var resp ErrorResponse
	if errors.As(err, &he) {
		status = he.Code
		resp = ErrorResponse{Error: http.StatusText(he.Code)}
		if msg, ok := he.Message.(string); ok && msg != "" {
			resp.Error = msg
		}
		if status >= http.StatusInternalServerError {
			slog.Error("request_failed", "path", c.Path(), "status", status, "error", err)
		}
	} else {
		status, resp = toResponse(err)
		if status >= http.StatusInternalServerError {
			slog.Error("request_failed", "path", c.Path(), "status", status, "error", err)
		}
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, resp)
	}
	if writeErr != nil {
		slog.Error("error_response_failed", "error", writeErr)
	}
}
