// internal/services/module_registry_service.go
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
)

// ModuleRegistryService keeps the persisted allow-lists (license templates, royalty
// policies, currency tokens, hooks, checkers, reward pools) together with the
// in-process implementations bound to those addresses.
type ModuleRegistryService struct {
	db    *gorm.DB
	exec  *Executor
	admin common.Address

	mu              sync.RWMutex
	implementations map[common.Address]interface{}
}

type RegisterModuleRequest struct {
	Address string            `json:"address" validate:"required,eth_addr,nonzero_addr"`
	Kind    models.ModuleKind `json:"kind" validate:"required,oneof=license_template royalty_policy external_royalty_policy currency_token licensing_hook commercializer_checker group_reward_pool"`
	Name    string            `json:"name,omitempty" validate:"max=100"`
}

func NewModuleRegistryService(db *gorm.DB, exec *Executor, admin common.Address) *ModuleRegistryService {
	return &ModuleRegistryService{
		db:              db,
		exec:            exec,
		admin:           admin,
		implementations: make(map[common.Address]interface{}),
	}
}

func (s *ModuleRegistryService) Admin() common.Address {
	return s.admin
}

func (s *ModuleRegistryService) RequireAdmin(caller common.Address) error {
	if s.admin == (common.Address{}) || caller != s.admin {
		return fmt.Errorf("%s: %w", caller.Hex(), ErrNotProtocolAdmin)
	}
	return nil
}

// Bind attaches an in-process implementation to an address. Binding does not
// allow-list the address.
func (s *ModuleRegistryService) Bind(address common.Address, implementation interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.implementations[address] = implementation
}

func (s *ModuleRegistryService) Implementation(address common.Address) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	impl, ok := s.implementations[address]
	return impl, ok
}

// RegisterModule allow-lists an address for a module kind. Admin only.
func (s *ModuleRegistryService) RegisterModule(ctx context.Context, caller, address common.Address, kind models.ModuleKind, name string) error {
	if err := s.RequireAdmin(caller); err != nil {
		return err
	}
	return s.exec.Execute(ctx, "registerModule", func(ctx context.Context) error {
		return s.register(ctx, kind, address, name)
	})
}

// RemoveModule drops an address from a module allow-list. Admin only.
func (s *ModuleRegistryService) RemoveModule(ctx context.Context, caller, address common.Address, kind models.ModuleKind) error {
	if err := s.RequireAdmin(caller); err != nil {
		return err
	}
	return s.exec.Execute(ctx, "removeModule", func(ctx context.Context) error {
		err := database.Conn(ctx, s.db).
			Where("kind = ? AND address = ?", kind, address.Hex()).
			Delete(&models.ModuleRegistration{}).Error
		if err != nil {
			return fmt.Errorf("failed to remove module: %w", err)
		}
		return nil
	})
}

func (s *ModuleRegistryService) register(ctx context.Context, kind models.ModuleKind, address common.Address, name string) error {
	if address == (common.Address{}) {
		return ErrZeroAddress
	}

	registration := models.ModuleRegistration{Kind: kind, Address: address.Hex()}
	err := database.Conn(ctx, s.db).
		Where("kind = ? AND address = ?", kind, address.Hex()).
		Attrs(models.ModuleRegistration{Name: name}).
		FirstOrCreate(&registration).Error
	if err != nil {
		return fmt.Errorf("failed to register %s module: %w", kind, err)
	}
	return nil
}

func (s *ModuleRegistryService) IsRegistered(ctx context.Context, kind models.ModuleKind, address common.Address) (bool, error) {
	if address == (common.Address{}) {
		return false, nil
	}
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.ModuleRegistration{}).
		Where("kind = ? AND address = ?", kind, address.Hex()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *ModuleRegistryService) ListModules(ctx context.Context, kind models.ModuleKind) ([]models.ModuleRegistration, error) {
	var modules []models.ModuleRegistration
	query := database.Conn(ctx, s.db).Order("id")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if err := query.Find(&modules).Error; err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	return modules, nil
}

// LicenseTemplate resolves a registered template address to its implementation.
func (s *ModuleRegistryService) LicenseTemplate(ctx context.Context, address common.Address) (LicenseTemplate, error) {
	registered, err := s.IsRegistered(ctx, models.ModuleKindLicenseTemplate, address)
	if err != nil {
		return nil, err
	}
	impl, _ := s.Implementation(address)
	template, ok := impl.(LicenseTemplate)
	if !registered || !ok {
		return nil, fmt.Errorf("%s: %w", address.Hex(), ErrUnregisteredLicenseTemplate)
	}
	return template, nil
}

// LicensingHook resolves a hook address. The address must be allow-listed and bound
// to an implementation with the hook capability.
func (s *ModuleRegistryService) LicensingHook(ctx context.Context, address common.Address) (LicensingHook, error) {
	registered, err := s.IsRegistered(ctx, models.ModuleKindLicensingHook, address)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, fmt.Errorf("%s: %w", address.Hex(), ErrInvalidLicensingHook)
	}
	impl, bound := s.Implementation(address)
	if !bound {
		return nil, fmt.Errorf("%s: %w", address.Hex(), ErrLicensingHookNotFound)
	}
	hook, ok := impl.(LicensingHook)
	if !ok {
		return nil, fmt.Errorf("%s: %w", address.Hex(), ErrInvalidLicensingHook)
	}
	return hook, nil
}

// CommercializerChecker resolves a checker address by capability; checkers are not
// allow-listed.
func (s *ModuleRegistryService) CommercializerChecker(address common.Address) (CommercializerChecker, error) {
	impl, _ := s.Implementation(address)
	checker, ok := impl.(CommercializerChecker)
	if !ok {
		return nil, fmt.Errorf("%s: %w", address.Hex(), ErrInvalidCommercializerChecker)
	}
	return checker, nil
}

// RoyaltyPolicy resolves a whitelisted or externally registered royalty policy.
func (s *ModuleRegistryService) RoyaltyPolicy(ctx context.Context, address common.Address) (RoyaltyPolicy, error) {
	allowed, err := s.IsRoyaltyPolicyAllowed(ctx, address)
	if err != nil {
		return nil, err
	}
	impl, _ := s.Implementation(address)
	policy, ok := impl.(RoyaltyPolicy)
	if !allowed || !ok {
		return nil, fmt.Errorf("%s: %w", address.Hex(), ErrRoyaltyPolicyNotWhitelisted)
	}
	return policy, nil
}

func (s *ModuleRegistryService) IsRoyaltyPolicyAllowed(ctx context.Context, address common.Address) (bool, error) {
	whitelisted, err := s.IsRegistered(ctx, models.ModuleKindRoyaltyPolicy, address)
	if err != nil || whitelisted {
		return whitelisted, err
	}
	return s.IsRegistered(ctx, models.ModuleKindExternalRoyaltyPolicy, address)
}

func (s *ModuleRegistryService) GroupRewardPool(ctx context.Context, address common.Address) (GroupRewardPool, error) {
	registered, err := s.IsRegistered(ctx, models.ModuleKindGroupRewardPool, address)
	if err != nil {
		return nil, err
	}
	impl, _ := s.Implementation(address)
	pool, ok := impl.(GroupRewardPool)
	if !registered || !ok {
		return nil, fmt.Errorf("%s: %w", address.Hex(), ErrInvalidGroupRewardPool)
	}
	return pool, nil
}
