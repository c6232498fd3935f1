// internal/services/protocol.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/models"
)

// Protocol wires the licensing and royalty services over one ledger.
type Protocol struct {
	Executor      *Executor
	Events        *EventService
	Modules       *ModuleRegistryService
	IPs           *IPService
	Disputes      *DisputeService
	Tokens        *TokenService
	Registry      *LicenseRegistryService
	PILTemplate   *PILTemplate
	LicenseTokens *LicenseTokenService
	Vaults        *RoyaltyVaultService
	Royalty       *RoyaltyService
	LAPPolicy     *LAPRoyaltyPolicy
	Groups        *GroupService
	EvenSplitPool *EvenSplitPool
	Licensing     *LicensingService

	cfg *config.Config
}

// NewProtocol builds the services. A nil clock uses wall-clock time.
func NewProtocol(db *gorm.DB, cfg *config.Config, clock Clock) *Protocol {
	if clock == nil {
		clock = time.Now
	}

	exec := NewExecutor(db)
	events := NewEventService(db)
	modules := NewModuleRegistryService(db, exec, common.HexToAddress(cfg.Licensing.AdminAddress))
	ips := NewIPService(db, exec, events, clock)
	disputes := NewDisputeService(db, exec, events, modules)
	tokens := NewTokenService(db, exec, modules)
	registry := NewLicenseRegistryService(db, exec, modules, disputes, clock, cfg.Licensing.MaxParents)
	template := NewPILTemplate(db, exec, events, modules, registry, ips, common.HexToAddress(cfg.Licensing.PILTemplateAddress))
	licenseTokens := NewLicenseTokenService(db, exec, events, modules, ips, disputes, clock)
	vaults := NewRoyaltyVaultService(db, exec, events, tokens, ips, clock, uint64(cfg.Royalty.MinSnapshotInterval))
	royalty := NewRoyaltyService(db, exec, events, modules, tokens, vaults, ips, disputes)
	lap := NewLAPRoyaltyPolicy(common.HexToAddress(cfg.Royalty.LAPPolicyAddress), vaults, cfg.Royalty.MaxAncestors)
	pool := NewEvenSplitPool(db, common.HexToAddress(cfg.Licensing.EvenSplitPoolAddress))
	groups := NewGroupService(db, exec, events, modules, registry, vaults, tokens, ips, ips, disputes, cfg.Licensing.MaxGroupSize)
	licensing := NewLicensingService(exec, events, modules, registry, licenseTokens, royalty, ips, ips, disputes, groups)

	modules.Bind(template.Address(), template)
	modules.Bind(lap.Address(), lap)
	modules.Bind(pool.Address(), pool)

	return &Protocol{
		Executor:      exec,
		Events:        events,
		Modules:       modules,
		IPs:           ips,
		Disputes:      disputes,
		Tokens:        tokens,
		Registry:      registry,
		PILTemplate:   template,
		LicenseTokens: licenseTokens,
		Vaults:        vaults,
		Royalty:       royalty,
		LAPPolicy:     lap,
		Groups:        groups,
		EvenSplitPool: pool,
		Licensing:     licensing,
		cfg:           cfg,
	}
}

// Bootstrap allow-lists the built-in modules and configured currencies, and sets the
// non-commercial social remixing terms as the default license when enabled. It is
// idempotent.
func (p *Protocol) Bootstrap(ctx context.Context) error {
	return p.Executor.Execute(ctx, "bootstrap", func(ctx context.Context) error {
		seeds := []struct {
			kind    models.ModuleKind
			address common.Address
			name    string
		}{
			{models.ModuleKindLicenseTemplate, p.PILTemplate.Address(), "PILicenseTemplate"},
			{models.ModuleKindRoyaltyPolicy, p.LAPPolicy.Address(), "RoyaltyPolicyLAP"},
			{models.ModuleKindGroupRewardPool, p.EvenSplitPool.Address(), "EvenSplitGroupPool"},
		}
		for _, token := range p.cfg.Royalty.WhitelistedTokens {
			seeds = append(seeds, struct {
				kind    models.ModuleKind
				address common.Address
				name    string
			}{models.ModuleKindCurrencyToken, common.HexToAddress(token), ""})
		}
		for _, seed := range seeds {
			if err := p.Modules.register(ctx, seed.kind, seed.address, seed.name); err != nil {
				return err
			}
		}

		if !p.cfg.Licensing.RegisterDefaultTerms {
			return nil
		}
		termsID, _, err := p.PILTemplate.registerLicenseTerms(ctx, NonCommercialSocialRemixingTerms())
		if err != nil {
			return fmt.Errorf("failed to register default terms: %w", err)
		}
		if err := p.Registry.setDefaultLicenseTerms(ctx, p.PILTemplate.Address(), termsID); err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"template": p.PILTemplate.Address().Hex(),
			"terms_id": termsID,
		}).Info("Default license terms configured")
		return nil
	})
}

// Pause rejects every state-mutating entry point until Unpause. Admin only.
func (p *Protocol) Pause(ctx context.Context, caller common.Address) error {
	if err := p.Modules.RequireAdmin(caller); err != nil {
		return err
	}
	if p.Executor.Paused() {
		return nil
	}
	err := p.Executor.Execute(ctx, "pause", func(ctx context.Context) error {
		return p.Events.Emit(ctx, models.EventProtocolPaused, common.Address{}, caller, nil)
	})
	if err != nil {
		return err
	}
	p.Executor.Pause()
	return nil
}

func (p *Protocol) Unpause(ctx context.Context, caller common.Address) error {
	if err := p.Modules.RequireAdmin(caller); err != nil {
		return err
	}
	if !p.Executor.Paused() {
		return nil
	}
	p.Executor.Unpause()
	return p.Executor.Execute(ctx, "unpause", func(ctx context.Context) error {
		return p.Events.Emit(ctx, models.EventProtocolUnpaused, common.Address{}, caller, nil)
	})
}

func (p *Protocol) Paused() bool {
	return p.Executor.Paused()
}
