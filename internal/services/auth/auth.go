// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth registers accounts, verifies email ownership and logs users in.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/creatorhub/internal/models"
	"codeberg.org/oliverandrich/creatorhub/internal/repository"
	"codeberg.org/oliverandrich/creatorhub/internal/services/email"
	"codeberg.org/oliverandrich/creatorhub/internal/services/verification"
	"codeberg.org/oliverandrich/creatorhub/internal/validator"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicateAccount     = errors.New("an account with this email or phone already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrRequiresVerification = errors.New("email address has not been verified")
	ErrUserNotFound         = errors.New("user not found")
	ErrAlreadyVerified      = errors.New("email address is already verified")
	ErrTooManyRequests      = errors.New("a verification code was sent recently, please wait before requesting another")
	ErrEmailDelivery        = errors.New("verification email could not be sent")

	ErrNoPendingCode = verification.ErrNoPendingCode
	ErrCodeExpired   = verification.ErrCodeExpired
	ErrCodeMismatch  = verification.ErrCodeMismatch
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// UserStore persists user accounts. Email lookups ignore case.
// CreateUser must fail with repository.ErrDuplicate when email or phone is taken.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, id int64) error
	SetManuallyVerified(ctx context.Context, id int64, verified bool) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// Mailer delivers account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, username, code string) (email.Delivery, error)
	SendAdminNotification(ctx context.Context, user *models.User) (email.Delivery, error)
	HasAdminRecipient() bool
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(user *models.User) (string, time.Time, error)
}

// Config holds the tunables of the verification flow.
type Config struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration // 0 disables
	BcryptCost     int
}

type Service struct {
	users             UserStore
	codes             verification.Store
	mailer            Mailer
	tokens            TokenIssuer
	validate          *validator.Validator
	passwordValidator *PasswordValidator
	cfg               Config
	now               func() time.Time
	generateCode      func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithCodeGenerator replaces verification.GenerateCode.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		s.generateCode = gen
	}
}

func NewService(users UserStore, codes verification.Store, mailer Mailer, tokens TokenIssuer, cfg Config, opts ...Option) *Service {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = verification.DefaultTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	s := &Service{
		users:             users,
		codes:             codes,
		mailer:            mailer,
		tokens:            tokens,
		validate:          validator.New(),
		passwordValidator: DefaultPasswordValidator(),
		cfg:               cfg,
		now:               time.Now,
		generateCode:      verification.GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterParams holds the parameters for user registration
type RegisterParams struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Password string `json:"password" validate:"required,max=72"`
	Role     string `json:"role" validate:"required,signup_role"`
}

// RegisterResult describes the new account and the fate of its email.
type RegisterResult struct {
	User     *models.User
	Delivery email.Delivery
	// DeliveryErr is set when the verification email failed. Registration
	// still succeeded and the user can request a new code.
	DeliveryErr error
}

// Session is a freshly issued session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// Register creates an unverified account and sends its verification code.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	params.Username = strings.TrimSpace(params.Username)
	params.Email = verification.NormalizeEmail(params.Email)
	params.Phone = strings.TrimSpace(params.Phone)

	if err := s.validate.Validate(params); err != nil {
		return nil, err
	}

	localPart, _, _ := strings.Cut(params.Email, "@")
	if problems := s.passwordValidator.Validate(params.Password, params.Username, localPart); len(problems) > 0 {
		return nil, validator.NewFieldError("password", problems[0].Message)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: string(hash),
		Role:         models.Role(params.Role),
		CreatedAt:    s.now().UTC(),
	}
	if params.Phone != "" {
		user.Phone = sql.NullString{String: params.Phone, Valid: true}
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			slog.Warn("register_failed", "email", params.Email, "reason", "duplicate", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrDuplicateAccount, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("register_success", "user_id", user.ID, "email", user.Email, "role", user.Role)

	result := &RegisterResult{User: user}
	result.Delivery, result.DeliveryErr = s.issueCode(ctx, user)
	if result.DeliveryErr != nil {
		slog.Error("verification_email_failed", "user_id", user.ID, "email", user.Email, "error", result.DeliveryErr)
	}

	if s.mailer.HasAdminRecipient() {
		if _, err := s.mailer.SendAdminNotification(ctx, user); err != nil {
			slog.Warn("admin_notification_failed", "user_id", user.ID, "error", err)
		}
	}

	return result, nil
}

// issueCode stores a fresh code for user and mails it. The returned error
// covers both storage and delivery.
func (s *Service) issueCode(ctx context.Context, user *models.User) (email.Delivery, error) {
	code, err := s.generateCode()
	if err != nil {
		return email.Delivery{}, err
	}

	if err := s.codes.PutCode(ctx, verification.NewCode(user.Email, code, s.now(), s.cfg.CodeTTL)); err != nil {
		return email.Delivery{}, fmt.Errorf("storing verification code: %w", err)
	}

	return s.mailer.SendVerification(ctx, user.Email, user.Username, code)
}

// Login authenticates by email or phone and issues a session token.
func (s *Service) Login(ctx context.Context, emailOrPhone, password string) (*Session, error) {
	identifier := strings.TrimSpace(emailOrPhone)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "identifier", identifier, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.Verified() {
		slog.Info("login_blocked", "user_id", user.ID, "reason", "email_not_verified")
		return nil, ErrRequiresVerification
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("login_success", "user_id", user.ID)
	return session, nil
}

func (s *Service) lookup(ctx context.Context, identifier string) (*models.User, error) {
	if strings.Contains(identifier, "@") {
		return s.users.GetUserByEmail(ctx, verification.NormalizeEmail(identifier))
	}
	return s.users.GetUserByPhone(ctx, identifier)
}

func (s *Service) startSession(ctx context.Context, user *models.User) (*Session, error) {
	signed, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("last_login_update_failed", "user_id", user.ID, "error", err)
	} else {
		user.LastLogin = sql.NullTime{Time: now, Valid: true}
	}

	return &Session{Token: signed, ExpiresAt: expiresAt, User: user}, nil
}

// ResendVerification replaces the pending code for addr and mails it.
func (s *Service) ResendVerification(ctx context.Context, addr string) (email.Delivery, error) {
	addr = verification.NormalizeEmail(addr)
	if addr == "" {
		return email.Delivery{}, validator.NewFieldError("email", "This field is required")
	}

	user, err := s.users.GetUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return email.Delivery{}, ErrUserNotFound
		}
		return email.Delivery{}, fmt.Errorf("failed to get user: %w", err)
	}

	if user.IsEmailVerified {
		return email.Delivery{}, ErrAlreadyVerified
	}

	if s.cfg.ResendCooldown > 0 {
		pending, err := s.codes.GetCode(ctx, addr)
		switch {
		case err == nil && s.now().Before(pending.IssuedAt.Add(s.cfg.ResendCooldown)):
			slog.Warn("resend_throttled", "user_id", user.ID)
			return email.Delivery{}, ErrTooManyRequests
		case err != nil && !errors.Is(err, verification.ErrNoPendingCode):
			return email.Delivery{}, fmt.Errorf("failed to read pending code: %w", err)
		}
	}

	delivery, err := s.issueCode(ctx, user)
	if err != nil {
		slog.Error("verification_email_failed", "user_id", user.ID, "error", err)
		return delivery, fmt.Errorf("%w: %w", ErrEmailDelivery, err)
	}

	slog.Info("verification_resent", "user_id", user.ID, "delivery", delivery.Mode)
	return delivery, nil
}

// VerifyParams holds an email and the code sent to it.
type VerifyParams struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// Verify consumes the pending code for email, marks the address verified
// and issues a session token.
func (s *Service) Verify(ctx context.Context, addr, code string) (*Session, error) {
	params := VerifyParams{
		Email: verification.NormalizeEmail(addr),
		Code:  strings.TrimSpace(code),
	}
	if err := s.validate.Validate(params); err != nil {
		return nil, err
	}

	if err := s.codes.ConsumeCode(ctx, params.Email, params.Code, s.now()); err != nil {
		slog.Warn("verify_failed", "email", params.Email, "reason", err)
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A code without an account is treated like no code at all.
			slog.Warn("verify_orphaned_code", "email", params.Email)
			return nil, ErrNoPendingCode
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}
	user.IsEmailVerified = true

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("verify_success", "user_id", user.ID)
	return session, nil
}

// CurrentUser returns the account behind a session token.
func (s *Service) CurrentUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// CreateAdmin creates a verified admin account. It bypasses the signup role
// restriction and sends no email.
func (s *Service) CreateAdmin(ctx context.Context, username, addr, password string) (*models.User, error) {
	addr = verification.NormalizeEmail(addr)
	if problems := s.passwordValidator.Validate(password, username); len(problems) > 0 {
		return nil, validator.NewFieldError("password", problems[0].Message)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:           strings.TrimSpace(username),
		Email:              addr,
		PasswordHash:       string(hash),
		Role:               models.RoleAdmin,
		IsEmailVerified:    true,
		IsManuallyVerified: true,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %w", ErrDuplicateAccount, err)
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin_created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Approve marks an account as manually verified by an admin.
func (s *Service) Approve(ctx context.Context, addr string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, verification.NormalizeEmail(addr))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.users.SetManuallyVerified(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("failed to approve user: %w", err)
	}
	user.IsManuallyVerified = true

	if err := s.codes.DeleteCode(ctx, user.Email); err != nil {
		slog.Warn("pending_code_cleanup_failed", "user_id", user.ID, "error", err)
	}

	slog.Info("user_approved", "user_id", user.ID)
	return user, nil
}
