package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
)

type identityUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type identityStudentRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
}

// IdentityConfig describes how access tokens from the identity provider are verified.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

// IdentityService verifies access tokens and resolves principals to roles.
type IdentityService struct {
	users    identityUserRepository
	students identityStudentRepository
	config   IdentityConfig
	logger   *zap.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(users identityUserRepository, students identityStudentRepository, config IdentityConfig, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{users: users, students: students, config: config, logger: logger}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *IdentityService) ValidateToken(tokenString string) (*models.AccessClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if !s.audienceAllowed(claims.Audience) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token audience not accepted")
	}
	return claims, nil
}

func (s *IdentityService) audienceAllowed(aud jwt.ClaimStrings) bool {
	if len(s.config.Audience) == 0 {
		return true
	}
	for _, want := range s.config.Audience {
		for _, got := range aud {
			if want == got {
				return true
			}
		}
	}
	return false
}

// Resolve maps a principal id onto exactly one role. Missing mappings and
// roles outside the enumeration fail with ROLE_RESOLUTION_FAILED.
func (s *IdentityService) Resolve(ctx context.Context, principalID string) (models.Principal, error) {
	if strings.TrimSpace(principalID) == "" {
		return models.Principal{}, appErrors.Clone(appErrors.ErrRoleResolution, "principal id is empty")
	}
	user, err := s.users.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Principal{}, appErrors.Clone(appErrors.ErrRoleResolution, "no role assigned to principal")
		}
		return models.Principal{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve role")
	}
	role, ok := models.ParseRole(user.Role)
	if !ok {
		s.logger.Warn("unrecognised role for principal", zap.String("principal_id", principalID), zap.String("role", user.Role))
		return models.Principal{}, appErrors.Clone(appErrors.ErrRoleResolution, "principal role is not recognised")
	}
	return models.Principal{PrincipalID: user.ID, Email: user.Email, Role: role}, nil
}

// Authenticate validates the token and resolves the caller's role.
func (s *IdentityService) Authenticate(ctx context.Context, tokenString string) (models.Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return models.Principal{}, err
	}
	principal, err := s.Resolve(ctx, claims.Subject)
	if err != nil {
		return models.Principal{}, err
	}
	if claims.Email != "" {
		principal.Email = claims.Email
	}
	return principal, nil
}

// StudentFor returns the student record of a Student principal, matched by email.
func (s *IdentityService) StudentFor(ctx context.Context, principal models.Principal) (*models.Student, error) {
	if !principal.Is(models.RoleStudent) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have a usn")
	}
	if s.students == nil || principal.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student record not found")
	}
	student, err := s.students.FindByEmail(ctx, principal.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}
