package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/festpos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
)

// Service resolves the signed-in user and their approval state.
type Service interface {
	Me(ctx context.Context, userID uuid.UUID, displayName string) (*Profile, error)
	IsVerified(ctx context.Context, userID uuid.UUID) (bool, error)
	SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error
}

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Upsert(ctx context.Context, id uuid.UUID, displayName string) (*models.User, error)
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) (bool, error)
}

type service struct {
	repo repository
}

func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	return &service{repo: repo}, nil
}

// Me registers the user on first sight, unverified, and keeps the display
// name in step with the token.
func (s *service) Me(ctx context.Context, userID uuid.UUID, displayName string) (*Profile, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	user, err := s.repo.Upsert(ctx, userID, strings.TrimSpace(displayName))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register user")
	}
	return profileOf(user), nil
}

// IsVerified reports false for unknown users.
func (s *service) IsVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user.Verified, nil
}

func (s *service) SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error {
	ok, err := s.repo.SetVerified(ctx, userID, verified)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return nil
}
