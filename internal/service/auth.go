package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/komodo-run/core/internal/config"
	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/port/database"
)

// AuthService handles authentication, JWT tokens, and API keys for Komodo
// Core. Komodo has no tenant or role enum: authorization beyond the two
// binary elevations (Admin, SuperAdmin) is resolved per-resource by
// internal/service/permission.
type AuthService struct {
	store  database.Store
	cfg    *config.Auth
	secret []byte
}

// NewAuthService creates a new authentication service.
func NewAuthService(store database.Store, cfg *config.Auth) *AuthService {
	return &AuthService{
		store:  store,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
	}
}

// Register creates a new interactive user with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &user.User{
		ID:           generateID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// CreateServiceUser creates a user with no password (API-key only
// authentication) — used for CI/automation principals.
func (s *AuthService) CreateServiceUser(ctx context.Context, username string) (*user.User, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	now := time.Now().UTC()
	u := &user.User{
		ID:          generateID(),
		Username:    username,
		ServiceUser: true,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create service user: %w", err)
	}
	return u, nil
}

// Login authenticates a user and returns an access token + raw refresh
// token. Accounts lock for user.LockoutDuration after user.MaxFailedAttempts
// consecutive failures.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", fmt.Errorf("validate: %w", err)
	}

	u, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", errors.New("invalid credentials")
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if !u.Enabled {
		return nil, "", errors.New("account is disabled")
	}
	if u.IsLocked() {
		return nil, "", errors.New("account is temporarily locked, try again later")
	}
	if u.ServiceUser {
		return nil, "", errors.New("service users cannot log in with a password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		u.FailedAttempts++
		if u.FailedAttempts >= user.MaxFailedAttempts {
			u.LockedUntil = time.Now().Add(user.LockoutDuration)
			slog.Warn("account locked due to failed login attempts",
				"username", u.Username, "attempts", u.FailedAttempts)
		}
		if updateErr := s.store.UpdateUser(ctx, u); updateErr != nil {
			slog.Error("failed to update user lockout state", "error", updateErr)
		}
		return nil, "", errors.New("invalid credentials")
	}

	if u.FailedAttempts > 0 || !u.LockedUntil.IsZero() {
		u.FailedAttempts = 0
		u.LockedUntil = time.Time{}
		if updateErr := s.store.UpdateUser(ctx, u); updateErr != nil {
			slog.Error("failed to reset user lockout state", "error", updateErr)
		}
	}

	return s.issueSession(ctx, u)
}

func (s *AuthService) issueSession(ctx context.Context, u *user.User) (*user.LoginResponse, string, error) {
	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, "", fmt.Errorf("sign jwt: %w", err)
	}

	rawToken, err := generateRandomToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}

	rt := &user.RefreshToken{
		ID:        generateID(),
		UserID:    u.ID,
		TokenHash: hashSHA256(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenExpiry),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRefreshToken(ctx, rt); err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}

	resp := &user.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		User:        *u,
	}
	return resp, rawToken, nil
}

// RefreshTokens validates a refresh token, atomically rotates it, and
// issues a new access token.
func (s *AuthService) RefreshTokens(ctx context.Context, rawToken string) (*user.LoginResponse, string, error) {
	tokenHash := hashSHA256(rawToken)

	rt, err := s.store.GetRefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		return nil, "", errors.New("invalid refresh token")
	}
	if time.Now().After(rt.ExpiresAt) {
		_ = s.store.DeleteRefreshToken(ctx, rt.ID)
		return nil, "", errors.New("refresh token expired")
	}

	u, err := s.store.GetUser(ctx, rt.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}
	if !u.Enabled {
		return nil, "", errors.New("account is disabled")
	}

	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, "", fmt.Errorf("sign jwt: %w", err)
	}

	newRawToken, err := generateRandomToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	newRT := &user.RefreshToken{
		ID:        generateID(),
		UserID:    u.ID,
		TokenHash: hashSHA256(newRawToken),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenExpiry),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.RotateRefreshToken(ctx, rt.ID, newRT); err != nil {
		return nil, "", fmt.Errorf("rotate refresh token: %w", err)
	}

	resp := &user.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		User:        *u,
	}
	return resp, newRawToken, nil
}

// Logout deletes all refresh tokens for a user and, if a JTI is given,
// revokes the current access token.
func (s *AuthService) Logout(ctx context.Context, userID, jti string, tokenExpiry time.Time) error {
	if jti != "" {
		if err := s.store.RevokeToken(ctx, jti, tokenExpiry); err != nil {
			slog.Warn("failed to revoke access token on logout", "jti", jti, "error", err)
		}
	}
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

// ValidateAccessToken verifies a JWT and returns the claims, checking
// revocation when a JTI is present (fail-closed on DB error).
func (s *AuthService) ValidateAccessToken(tokenStr string) (*user.TokenClaims, error) {
	claims, err := s.verifyJWT(tokenStr)
	if err != nil {
		return nil, err
	}

	if claims.JTI != "" {
		revoked, dbErr := s.store.IsTokenRevoked(context.Background(), claims.JTI)
		if dbErr != nil {
			slog.Error("token revocation check failed, denying token", "jti", claims.JTI, "error", dbErr)
			return nil, errors.New("unable to verify token status")
		}
		if revoked {
			return nil, errors.New("token has been revoked")
		}
	}

	return claims, nil
}

// ValidateAPIKey looks up an API key by its value and checks the secret.
// The websocket login frame (`ApiKeys{key,secret}`) and the
// `/auth` HTTP surface both authenticate this way.
func (s *AuthService) ValidateAPIKey(ctx context.Context, key, secret string) (*user.User, *user.APIKey, error) {
	apiKey, err := s.store.GetAPIKeyByKey(ctx, key)
	if err != nil {
		return nil, nil, errors.New("invalid api key")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(apiKey.SecretHash), []byte(secret)); err != nil {
		return nil, nil, errors.New("invalid api key")
	}
	if !apiKey.ExpiresAt.IsZero() && time.Now().After(apiKey.ExpiresAt) {
		return nil, nil, errors.New("api key expired")
	}

	u, err := s.store.GetUser(ctx, apiKey.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	if !u.Enabled {
		return nil, nil, errors.New("account is disabled")
	}
	return u, apiKey, nil
}

// CreateAPIKey generates a new key+secret pair for a user; only the secret's
// hash is ever persisted, and the plaintext secret is returned exactly once.
func (s *AuthService) CreateAPIKey(ctx context.Context, userID string, req user.CreateAPIKeyRequest) (*user.CreateAPIKeyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	keyPart, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	secret, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	var expiresAt time.Time
	if req.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	key := &user.APIKey{
		ID:         generateID(),
		UserID:     userID,
		Name:       req.Name,
		Key:        user.APIKeyPrefix + keyPart[:16],
		SecretHash: string(secretHash),
		ExpiresAt:  expiresAt,
	}

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	return &user.CreateAPIKeyResponse{
		APIKey: *key,
		Secret: secret,
	}, nil
}

// ListAPIKeys returns all API keys for a user.
func (s *AuthService) ListAPIKeys(ctx context.Context, userID string) ([]user.APIKey, error) {
	return s.store.ListAPIKeysByUser(ctx, userID)
}

// DeleteAPIKey removes an API key. Callers must check ownership/admin
// before calling, since the store has no user-scoping on delete.
func (s *AuthService) DeleteAPIKey(ctx context.Context, id string) error {
	return s.store.DeleteAPIKey(ctx, id)
}

// ListUsers returns every registered user.
func (s *AuthService) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// GetUser returns a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

// UpdateUserRequest carries the fields an admin may change on another user.
type UpdateUserRequest struct {
	Enabled    *bool
	Admin      *bool
	SuperAdmin *bool
}

// UpdateUser applies an admin-issued patch to a user's elevation/enabled
// flags. Only a super_admin may grant or revoke SuperAdmin.
func (s *AuthService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Enabled != nil {
		u.Enabled = *req.Enabled
	}
	if req.Admin != nil {
		u.Admin = *req.Admin
	}
	if req.SuperAdmin != nil {
		u.SuperAdmin = *req.SuperAdmin
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes a user and their refresh tokens.
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteRefreshTokensByUser(ctx, id); err != nil {
		slog.Warn("failed to delete refresh tokens on user delete", "user_id", id, "error", err)
	}
	return s.store.DeleteUser(ctx, id)
}

// SetupStatus represents the initial setup state of the system.
type SetupStatus struct {
	NeedsSetup bool `json:"needs_setup"`
}

// GetSetupStatus checks if the system needs initial setup (no users exist).
func (s *AuthService) GetSetupStatus(ctx context.Context) (*SetupStatus, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return &SetupStatus{NeedsSetup: len(users) == 0}, nil
}

// BootstrapAdmin creates the initial super_admin user when no users exist.
// If cfg.DefaultAdminPass is set, that password is used; otherwise a
// random one is generated and written to cfg.InitialPasswordFile.
func (s *AuthService) BootstrapAdmin(ctx context.Context) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(users) > 0 {
		return nil
	}

	password := s.cfg.DefaultAdminPass
	generated := false
	if password == "" {
		password, err = generateRandomPassword(24)
		if err != nil {
			return fmt.Errorf("generate initial password: %w", err)
		}
		generated = true
	}

	u, err := s.Register(ctx, &user.CreateRequest{
		Username: "admin",
		Email:    s.cfg.DefaultAdminEmail,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	u.Admin = true
	u.SuperAdmin = true
	u.MustChangePassword = true
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("elevate bootstrap admin: %w", err)
	}

	if generated && s.cfg.InitialPasswordFile != "" {
		if err := writePasswordFile(s.cfg.InitialPasswordFile, password); err != nil {
			return fmt.Errorf("write initial password file: %w", err)
		}
		slog.Warn("initial admin password written to file — change it on first login",
			"file", s.cfg.InitialPasswordFile, "username", "admin")
	}

	slog.Info("bootstrapped super_admin user", "username", "admin")
	return nil
}

// ChangePassword verifies the old password, validates the new one's
// complexity, hashes it, and clears MustChangePassword.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req user.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)); err != nil {
		return errors.New("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u.PasswordHash = string(hash)
	u.MustChangePassword = false
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if s.cfg.InitialPasswordFile != "" {
		if err := os.Remove(s.cfg.InitialPasswordFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove initial password file", "path", s.cfg.InitialPasswordFile, "error", err)
		}
	}
	return nil
}

// AdminResetPassword overwrites username's password without checking the
// old one, for the cmd-line admin path. The account is flagged
// MustChangePassword so the new credential only bridges to a real one.
func (s *AuthService) AdminResetPassword(ctx context.Context, username, newPassword string) error {
	if err := user.ValidatePasswordComplexity(newPassword); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	u.MustChangePassword = true
	u.FailedAttempts = 0
	u.LockedUntil = time.Time{}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return s.store.DeleteRefreshTokensByUser(ctx, u.ID)
}

// StartTokenCleanup runs a background loop purging expired revoked tokens
// until ctx is cancelled.
func (s *AuthService) StartTokenCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.PurgeExpiredTokens(ctx)
				if err != nil {
					slog.Warn("failed to purge expired tokens", "error", err)
				} else if n > 0 {
					slog.Info("purged expired revoked tokens", "count", n)
				}
			}
		}
	}()
}

// --- JWT implementation (HS256 with stdlib) ---

var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func (s *AuthService) signJWT(u *user.User) (string, error) {
	now := time.Now()
	claims := user.TokenClaims{
		JTI:        generateID(),
		UserID:     u.ID,
		Username:   u.Username,
		Admin:      u.Admin,
		SuperAdmin: u.SuperAdmin,
		Audience:   "komodo",
		Issuer:     "komodo-core",
		IssuedAt:   now.Unix(),
		Expiry:     now.Add(s.cfg.AccessTokenExpiry).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	payloadB64 := base64URLEncode(payload)
	signingInput := jwtHeader + "." + payloadB64

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	sig := base64URLEncode(mac.Sum(nil))

	return signingInput + "." + sig, nil
}

func (s *AuthService) verifyJWT(tokenStr string) (*user.TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	expectedSig := base64URLEncode(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return nil, errors.New("invalid signature")
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var claims user.TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	if time.Now().Unix() > claims.Expiry {
		return nil, errors.New("token expired")
	}
	if claims.Audience != "komodo" {
		return nil, errors.New("invalid token audience")
	}
	if claims.Issuer != "komodo-core" {
		return nil, errors.New("invalid token issuer")
	}

	return &claims, nil
}

// --- Helpers ---

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}

func hashSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateID produces a UUID v4 string using crypto/rand.
func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func generateRandomPassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	b[0] = 'A' + b[0]%26
	b[1] = 'a' + b[1]%26
	b[2] = '0' + b[2]%10
	return string(b), nil
}

func writePasswordFile(path, password string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return os.WriteFile(path, []byte(password+"\n"), 0o600)
}
