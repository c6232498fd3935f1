// internal/services/lap_royalty_policy.go
package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// LAPRoyaltyPolicy is the liquid absolute percentage policy: every ancestor of a
// derivative keeps a fixed percentage of the derivative's revenue, accumulated
// through the whole chain of parents.
type LAPRoyaltyPolicy struct {
	address      common.Address
	vaults       *RoyaltyVaultService
	maxAncestors int
}

func NewLAPRoyaltyPolicy(address common.Address, vaults *RoyaltyVaultService, maxAncestors int) *LAPRoyaltyPolicy {
	return &LAPRoyaltyPolicy{
		address:      address,
		vaults:       vaults,
		maxAncestors: maxAncestors,
	}
}

func (p *LAPRoyaltyPolicy) Address() common.Address {
	return p.address
}

// OnLicenseMinting deploys a root vault for an IP minting its first license, and
// rejects licenses that would push its royalty stack past 100%.
func (p *LAPRoyaltyPolicy) OnLicenseMinting(ctx context.Context, ipID common.Address, royaltyPercent uint32, externalData []byte) error {
	hasVault, err := p.vaults.HasVault(ctx, ipID)
	if err != nil {
		return err
	}

	var royaltyStack uint64
	if hasVault {
		vault, err := p.vaults.GetVault(ctx, ipID)
		if err != nil {
			return err
		}
		royaltyStack = vault.RoyaltyStack
	}
	if royaltyStack+uint64(royaltyPercent) > TotalRoyaltyShares {
		return fmt.Errorf("%s: %w", ipID.Hex(), ErrAboveRoyaltyStackLimit)
	}

	if hasVault {
		return nil
	}
	_, err = p.vaults.deployVault(ctx, ipID, p.address, 0, nil)
	return err
}

// OnLinkToParents deploys the derivative's vault, withholding each ancestor's share.
// A parent passes on its own ancestors' shares plus the license percentage.
func (p *LAPRoyaltyPolicy) OnLinkToParents(ctx context.Context, ipID common.Address, parentIPIDs []common.Address, licenseRoyaltyPercents []uint32, externalData []byte) error {
	if len(parentIPIDs) != len(licenseRoyaltyPercents) {
		return ErrParentTermsLengthMismatch
	}

	hasVault, err := p.vaults.HasVault(ctx, ipID)
	if err != nil {
		return err
	}
	if hasVault {
		return fmt.Errorf("%s: %w", ipID.Hex(), ErrUnlinkableToParents)
	}

	var royaltyStack uint64
	var order []common.Address
	shares := make(map[common.Address]uint64)
	add := func(ancestor common.Address, amount uint64) {
		if _, ok := shares[ancestor]; !ok {
			order = append(order, ancestor)
		}
		shares[ancestor] += amount
	}

	for i, parentIPID := range parentIPIDs {
		percent := uint64(licenseRoyaltyPercents[i])
		add(parentIPID, percent)
		royaltyStack += percent

		parentHasVault, err := p.vaults.HasVault(ctx, parentIPID)
		if err != nil {
			return err
		}
		if !parentHasVault {
			continue
		}
		parentVault, err := p.vaults.GetVault(ctx, parentIPID)
		if err != nil {
			return err
		}
		royaltyStack += parentVault.RoyaltyStack

		inherited, err := p.vaults.GetAncestorRoyalties(ctx, parentIPID)
		if err != nil {
			return err
		}
		for _, row := range inherited {
			add(common.HexToAddress(row.AncestorIPID), row.Shares)
		}
	}

	if royaltyStack > TotalRoyaltyShares {
		return fmt.Errorf("%s: %w", ipID.Hex(), ErrAboveRoyaltyStackLimit)
	}
	if p.maxAncestors > 0 && len(order) > p.maxAncestors {
		return fmt.Errorf("%d ancestors: %w", len(order), ErrAboveAncestorsLimit)
	}

	ancestors := make([]ancestorShare, 0, len(order))
	for _, ancestor := range order {
		ancestors = append(ancestors, ancestorShare{ancestor: ancestor, shares: shares[ancestor]})
	}
	_, err = p.vaults.deployVault(ctx, ipID, p.address, royaltyStack, ancestors)
	return err
}
