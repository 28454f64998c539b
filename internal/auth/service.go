package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many requests")
	ErrAdminExists        = errors.New("admin already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAuthDisabled       = errors.New("admin auth requires a database")
)

const guardPasswordLogin = "password_login"

const minPasswordLength = 10

type Service struct {
	db                *sql.DB
	sessionTTL        time.Duration
	bcryptCost        int
	loginMaxFailures  int
	loginLockDuration time.Duration
	logger            *zap.Logger
}

type ServiceConfig struct {
	SessionTTL        time.Duration
	BcryptCost        int
	LoginMaxFailures  int
	LoginLockDuration time.Duration
	Logger            *zap.Logger
}

// Admin is a dashboard operator. Respondents never authenticate.
type Admin struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginResult struct {
	Admin     *Admin
	Token     string
	ExpiresAt time.Time
}

type CreateAdminInput struct {
	Email    string
	FullName string
	Password string
}

func NewService(db *sql.DB, cfg ServiceConfig) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.LoginMaxFailures <= 0 {
		cfg.LoginMaxFailures = 5
	}
	if cfg.LoginLockDuration <= 0 {
		cfg.LoginLockDuration = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Service{
		db:                db,
		sessionTTL:        cfg.SessionTTL,
		bcryptCost:        cfg.BcryptCost,
		loginMaxFailures:  cfg.LoginMaxFailures,
		loginLockDuration: cfg.LoginLockDuration,
		logger:            cfg.Logger,
	}
}

// Login checks the password and opens a session. Repeated failures for the
// same email lock it for loginLockDuration.
func (s *Service) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginResult, error) {
	if s.db == nil {
		return nil, ErrAuthDisabled
	}
	admin, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.createSession(ctx, admin.ID, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin login", zap.Int64("admin_id", admin.ID))
	return &LoginResult{Admin: admin, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) authenticate(ctx context.Context, email, password string) (*Admin, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	locked, _, err := s.isGuardLocked(ctx, guardPasswordLogin, email)
	if err != nil {
		return nil, fmt.Errorf("check login guard: %w", err)
	}
	if locked {
		return nil, ErrRateLimited
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, is_active, created_at, password_hash
		FROM admin_users
		WHERE email = $1
		LIMIT 1
	`, email)

	var a Admin
	var passwordHash string
	if err := row.Scan(&a.ID, &a.Email, &a.FullName, &a.IsActive, &a.CreatedAt, &passwordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.registerFailureLogged(ctx, email)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query admin: %w", err)
	}

	if !a.IsActive {
		s.registerFailureLogged(ctx, email)
		return nil, ErrForbidden
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		s.registerFailureLogged(ctx, email)
		return nil, ErrInvalidCredentials
	}

	if err := s.clearGuard(ctx, guardPasswordLogin, email); err != nil {
		s.logger.Warn("clear login guard", zap.Error(err))
	}
	return &a, nil
}

func (s *Service) createSession(ctx context.Context, adminID int64, ipAddress, userAgent string) (string, time.Time, error) {
	token, err := generateToken(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := time.Now().Add(s.sessionTTL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (
			user_id, session_token_hash, expires_at, ip_address, user_agent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, now()
		)
	`, adminID, hashToken(token), expiresAt, nullableString(ipAddress), nullableString(userAgent))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("insert session: %w", err)
	}
	return token, expiresAt, nil
}

// SessionAdmin resolves a session token to its active admin.
func (s *Service) SessionAdmin(ctx context.Context, token string) (*Admin, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}
	if s.db == nil {
		return nil, ErrAuthDisabled
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.full_name, u.is_active, u.created_at
		FROM auth_sessions s
		JOIN admin_users u ON u.id = s.user_id
		WHERE s.session_token_hash = $1
		  AND s.revoked_at IS NULL
		  AND s.expires_at > now()
		LIMIT 1
	`, hashToken(token))

	var a Admin
	if err := row.Scan(&a.ID, &a.Email, &a.FullName, &a.IsActive, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("query session admin: %w", err)
	}
	if !a.IsActive {
		return nil, ErrUnauthorized
	}
	return &a, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = now()
		WHERE session_token_hash = $1
		  AND revoked_at IS NULL
	`, hashToken(token))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// CreateAdmin provisions an admin account. It fails with ErrAdminExists when
// the email is taken.
func (s *Service) CreateAdmin(ctx context.Context, in CreateAdminInput) (*Admin, error) {
	email, fullName, err := validateAdminInput(in)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var a Admin
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO admin_users (email, full_name, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, now(), now())
		ON CONFLICT (email) DO NOTHING
		RETURNING id, email, full_name, is_active, created_at
	`, email, fullName, string(hash)).Scan(&a.ID, &a.Email, &a.FullName, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdminExists
		}
		return nil, fmt.Errorf("insert admin: %w", err)
	}
	return &a, nil
}

// DeactivateAdmin disables an account and revokes its open sessions.
func (s *Service) DeactivateAdmin(ctx context.Context, email string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		UPDATE admin_users
		SET is_active = FALSE, updated_at = now()
		WHERE email = $1
		RETURNING id
	`, normalizeEmail(email)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("deactivate admin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE auth_sessions SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return tx.Commit()
}

func validateAdminInput(in CreateAdminInput) (email, fullName string, err error) {
	email = normalizeEmail(in.Email)
	if _, perr := mail.ParseAddress(email); perr != nil || email == "" {
		return "", "", fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	fullName = strings.TrimSpace(in.FullName)
	if fullName == "" {
		fullName = email
	}
	if len(in.Password) < minPasswordLength {
		return "", "", fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	return email, fullName, nil
}

func (s *Service) registerFailureLogged(ctx context.Context, key string) {
	if err := s.registerFailure(ctx, guardPasswordLogin, key, s.loginMaxFailures, s.loginLockDuration); err != nil {
		s.logger.Warn("register login failure", zap.Error(err))
	}
}

func (s *Service) isGuardLocked(ctx context.Context, purpose, subjectKey string) (bool, time.Time, error) {
	var lockedUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT locked_until
		FROM auth_guard_states
		WHERE purpose = $1 AND subject_key = $2
	`, purpose, subjectKey).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}
	if !lockedUntil.Valid {
		return false, time.Time{}, nil
	}
	return time.Now().Before(lockedUntil.Time), lockedUntil.Time, nil
}

func (s *Service) registerFailure(ctx context.Context, purpose, subjectKey string, maxFailures int, lockDuration time.Duration) error {
	var failedCount int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_guard_states (purpose, subject_key, failed_count, updated_at, created_at)
		VALUES ($1, $2, 1, now(), now())
		ON CONFLICT (purpose, subject_key)
		DO UPDATE SET
			failed_count = auth_guard_states.failed_count + 1,
			updated_at = now()
		RETURNING failed_count
	`, purpose, subjectKey).Scan(&failedCount)
	if err != nil {
		return err
	}
	if failedCount < maxFailures {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE auth_guard_states
		SET locked_until = now() + ($3 || ' seconds')::interval,
			failed_count = 0,
			updated_at = now()
		WHERE purpose = $1 AND subject_key = $2
	`, purpose, subjectKey, int(lockDuration.Seconds()))
	return err
}

func (s *Service) clearGuard(ctx context.Context, purpose, subjectKey string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_guard_states
		WHERE purpose = $1 AND subject_key = $2
	`, purpose, subjectKey)
	return err
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nullableString(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
