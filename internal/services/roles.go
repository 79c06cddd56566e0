package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pill-reminder/internal/database"
	"pill-reminder/internal/push"
)

var (
	ErrInvalidToken    = errors.New("device token is not valid for the platform")
	ErrRoleNotSelected = errors.New("select a role before registering a device")
)

// RoleService maps identities (JWT subject or tg:<chat id>) to roles and devices.
type RoleService struct {
	repository *database.Repository
	onChange   func(ctx context.Context) error
}

func NewRoleService(repo *database.Repository) *RoleService {
	return &RoleService{repository: repo}
}

// OnChange registers a hook run after any role or device change.
func (s *RoleService) OnChange(fn func(ctx context.Context) error) {
	s.onChange = fn
}

func (s *RoleService) Resolve(ctx context.Context, identity string) (database.Role, error) {
	cfg, exists, err := s.repository.GetUserConfig(ctx, identity)
	if err != nil {
		return database.RoleUnassigned, fmt.Errorf("resolve role for %s: %w", identity, err)
	}
	if !exists {
		return database.RoleUnassigned, nil
	}
	return cfg.Role, nil
}

func (s *RoleService) Profile(ctx context.Context, identity string) (database.UserConfig, bool, error) {
	return s.repository.GetUserConfig(ctx, identity)
}

func (s *RoleService) Select(ctx context.Context, identity string, role database.Role) (database.UserConfig, error) {
	cfg, err := s.repository.SaveRole(ctx, identity, role)
	if err != nil {
		return database.UserConfig{}, fmt.Errorf("select role for %s: %w", identity, err)
	}
	log.Printf("👤 %s is now %s", identity, role)
	s.changed(ctx)
	return cfg, nil
}

func (s *RoleService) RegisterDevice(ctx context.Context, identity string, platform database.Platform, token string) (database.UserConfig, error) {
	if !push.ValidToken(platform, token) {
		return database.UserConfig{}, fmt.Errorf("%w: %s", ErrInvalidToken, platform)
	}
	cfg, err := s.repository.UpdatePushToken(ctx, identity, platform, token)
	if errors.Is(err, database.ErrUnknownUser) {
		return database.UserConfig{}, ErrRoleNotSelected
	}
	if err != nil {
		return database.UserConfig{}, fmt.Errorf("register device for %s: %w", identity, err)
	}
	log.Printf("📱 %s registered a %s device", identity, platform)
	s.changed(ctx)
	return cfg, nil
}

func (s *RoleService) changed(ctx context.Context) {
	if s.onChange == nil {
		return
	}
	if err := s.onChange(ctx); err != nil {
		log.Printf("⚠️ Post role-change hook: %v", err)
	}
}
