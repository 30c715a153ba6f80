package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
	"worklens/pkg/utils"
	"worklens/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the token payload. sub carries the subject id.
type Claims struct {
	UID  int64  `json:"uid,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string      `json:"token"`
	Role      domain.Role `json:"role"`
	ExpiresIn int64       `json:"expiresIn"`
}

type AuthService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	directory ports.Directory
	logger    *zap.SugaredLogger
}

func NewAuthService(jwtSecret string, tokenTTL time.Duration, directory ports.Directory, logger *zap.SugaredLogger) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		directory: directory,
		logger:    logger,
	}
}

// IssueToken signs an HS256 token for identity.
func (s *AuthService) IssueToken(identity domain.Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		UID:  identity.NumericID,
		Role: identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity.SubjectID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken resolves a bearer token to an identity. Every failure,
// including an unknown role claim, is domain.ErrAuthInvalid.
func (s *AuthService) ValidateToken(tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Anonymous, domain.ErrAuthInvalid
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Anonymous, fmt.Errorf("%w: token expired", domain.ErrAuthInvalid)
		}
		return domain.Anonymous, domain.ErrAuthInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Anonymous, domain.ErrAuthInvalid
	}

	identity := domain.Identity{
		SubjectID: domain.SubjectID(utils.NormalizeSubjectID(claims.Subject)),
		NumericID: claims.UID,
		Role:      domain.ParseRole(claims.Role),
	}
	if !identity.Authenticated() {
		return domain.Anonymous, domain.ErrAuthInvalid
	}
	return identity, nil
}

// Login checks credentials against the directory and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	id := domain.SubjectID(utils.NormalizeSubjectID(email))

	account, err := s.directory.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrAuthInvalid
		}
		return nil, err
	}

	if account.PasswordHash == "" {
		return nil, domain.ErrAuthInvalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.logger.Infow("login rejected", "subject_id", id)
		return nil, domain.ErrAuthInvalid
	}

	token, err := s.IssueToken(account.Identity())
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Infow("login succeeded", "subject_id", id, "role", account.Role.String())
	return &LoginResult{
		Token:     token,
		Role:      account.Role,
		ExpiresIn: int64(s.tokenTTL / time.Second),
	}, nil
}

// EnsureBootstrapAdmin creates a global viewer account when none exists for
// email. An existing account is left untouched.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	id := domain.SubjectID(utils.NormalizeSubjectID(email))

	_, err := s.directory.Get(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if err := s.directory.Put(ctx, &domain.Account{
		SubjectID:    id,
		Name:         "Administrator",
		Role:         domain.RoleGlobalViewer,
		PasswordHash: hash,
	}); err != nil {
		return err
	}

	s.logger.Infow("bootstrap admin created", "subject_id", id)
	return nil
}

// HashPassword returns a bcrypt hash suitable for Account.PasswordHash.
func HashPassword(password string) (string, error) {
	if err := validation.ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
