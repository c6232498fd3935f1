// internal/services/royalty_vault_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/metrics"
	"github.com/javajoker/imi-licensing/internal/models"
)

// TotalRoyaltyShares is the fixed share supply of every vault, and the unit of
// royalty percentages (100%).
const TotalRoyaltyShares uint64 = 100_000_000

// RoyaltyVaultService keeps per-IP revenue vaults: royalty share balances with
// per-snapshot checkpoints, revenue pools frozen by snapshots, and the reserve
// withheld for ancestors.
type RoyaltyVaultService struct {
	db                  *gorm.DB
	exec                *Executor
	events              *EventService
	tokens              *TokenService
	access              AccessController
	clock               Clock
	minSnapshotInterval uint64
}

type ancestorShare struct {
	ancestor common.Address
	shares   uint64
}

type TransferSharesRequest struct {
	From   common.Address `json:"from" binding:"required"`
	To     common.Address `json:"to" binding:"required"`
	Amount uint64         `json:"amount" binding:"required"`
}

func NewRoyaltyVaultService(db *gorm.DB, exec *Executor, events *EventService, tokens *TokenService, access AccessController, clock Clock, minSnapshotInterval uint64) *RoyaltyVaultService {
	return &RoyaltyVaultService{
		db:                  db,
		exec:                exec,
		events:              events,
		tokens:              tokens,
		access:              access,
		clock:               clock,
		minSnapshotInterval: minSnapshotInterval,
	}
}

// VaultAddress is the account that holds a vault's revenue and withheld shares.
func VaultAddress(ipID common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("royalty-vault"), ipID.Bytes())[12:])
}

// deployVault creates the vault of ipID. The IP receives every share not withheld
// for ancestors.
func (s *RoyaltyVaultService) deployVault(ctx context.Context, ipID, policy common.Address, royaltyStack uint64, ancestors []ancestorShare) (*models.RoyaltyVault, error) {
	if royaltyStack > TotalRoyaltyShares {
		return nil, ErrAboveRoyaltyStackLimit
	}

	vault := &models.RoyaltyVault{
		IPID:            ipID.Hex(),
		Address:         VaultAddress(ipID).Hex(),
		Policy:          policy.Hex(),
		RoyaltyStack:    royaltyStack,
		TotalShares:     TotalRoyaltyShares,
		UnclaimedShares: royaltyStack,
		DeployedAt:      unixNow(s.clock),
	}
	conn := database.Conn(ctx, s.db)
	if err := conn.Create(vault).Error; err != nil {
		return nil, fmt.Errorf("failed to deploy royalty vault: %w", err)
	}

	for _, ancestor := range ancestors {
		row := models.AncestorRoyalty{
			VaultIPID:    vault.IPID,
			AncestorIPID: ancestor.ancestor.Hex(),
			Shares:       ancestor.shares,
		}
		if err := conn.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("failed to record ancestor royalty: %w", err)
		}
	}

	if err := s.setShareBalance(ctx, vault, ipID, TotalRoyaltyShares-royaltyStack); err != nil {
		return nil, err
	}
	if royaltyStack > 0 {
		if err := s.setShareBalance(ctx, vault, VaultAddress(ipID), royaltyStack); err != nil {
			return nil, err
		}
	}

	if err := s.events.Emit(ctx, models.EventRoyaltyVaultDeployed, ipID, common.Address{}, map[string]interface{}{
		"vault":         vault.Address,
		"policy":        vault.Policy,
		"royalty_stack": royaltyStack,
		"ancestors":     len(ancestors),
	}); err != nil {
		return nil, err
	}
	return vault, nil
}

func (s *RoyaltyVaultService) GetVault(ctx context.Context, ipID common.Address) (*models.RoyaltyVault, error) {
	var vault models.RoyaltyVault
	if err := database.Conn(ctx, s.db).Where("ip_id = ?", ipID.Hex()).First(&vault).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", ipID.Hex(), ErrRoyaltyVaultNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &vault, nil
}

func (s *RoyaltyVaultService) HasVault(ctx context.Context, ipID common.Address) (bool, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.RoyaltyVault{}).Where("ip_id = ?", ipID.Hex()).Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *RoyaltyVaultService) GetAncestorRoyalties(ctx context.Context, ipID common.Address) ([]models.AncestorRoyalty, error) {
	var rows []models.AncestorRoyalty
	if err := database.Conn(ctx, s.db).Where("vault_ip_id = ?", ipID.Hex()).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return rows, nil
}

// receiveRevenue credits revenue the vault account has already received.
func (s *RoyaltyVaultService) receiveRevenue(ctx context.Context, vault *models.RoyaltyVault, token common.Address, amount uint64) error {
	row, err := s.revenueToken(ctx, vault, token)
	if err != nil {
		return err
	}
	balance, err := addAmount(row.Balance, amount)
	if err != nil {
		return err
	}
	if err := database.Conn(ctx, s.db).Model(row).Update("balance", balance).Error; err != nil {
		return fmt.Errorf("failed to record revenue: %w", err)
	}

	onCommit(ctx, func() {
		metrics.AddRevenue(token.Hex(), amount)
	})
	return nil
}

func (s *RoyaltyVaultService) revenueToken(ctx context.Context, vault *models.RoyaltyVault, token common.Address) (*models.VaultRevenueToken, error) {
	row := models.VaultRevenueToken{VaultIPID: vault.IPID, Token: token.Hex()}
	if err := database.Conn(ctx, s.db).
		Where("vault_ip_id = ? AND token = ?", vault.IPID, token.Hex()).
		FirstOrCreate(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to load vault revenue: %w", err)
	}
	return &row, nil
}

func (s *RoyaltyVaultService) GetRevenueTokens(ctx context.Context, ipID common.Address) ([]models.VaultRevenueToken, error) {
	var rows []models.VaultRevenueToken
	if err := database.Conn(ctx, s.db).Where("vault_ip_id = ?", ipID.Hex()).Order("token").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return rows, nil
}

// Snapshot freezes the revenue received since the previous snapshot into claimable
// pools. The ancestors' portion moves to their reserve instead.
func (s *RoyaltyVaultService) Snapshot(ctx context.Context, caller, ipID common.Address) (uint64, error) {
	var snapshotID uint64
	err := s.exec.Execute(ctx, "snapshot", func(ctx context.Context) error {
		id, err := s.snapshot(ctx, ipID)
		if err != nil {
			return err
		}
		snapshotID = id
		return s.events.Emit(ctx, models.EventSnapshotCompleted, ipID, caller, map[string]interface{}{
			"snapshot_id": id,
		})
	})
	if err != nil {
		return 0, err
	}
	return snapshotID, nil
}

func (s *RoyaltyVaultService) snapshot(ctx context.Context, ipID common.Address) (uint64, error) {
	vault, err := s.GetVault(ctx, ipID)
	if err != nil {
		return 0, err
	}

	now := unixNow(s.clock)
	if vault.SnapshotCount > 0 && now < vault.LastSnapshotAt+s.minSnapshotInterval {
		return 0, fmt.Errorf("next snapshot at %d: %w", vault.LastSnapshotAt+s.minSnapshotInterval, ErrSnapshotIntervalTooShort)
	}

	revenue, err := s.GetRevenueTokens(ctx, ipID)
	if err != nil {
		return 0, err
	}

	conn := database.Conn(ctx, s.db)
	snapshotID := vault.SnapshotCount + 1
	distributed := false
	for i := range revenue {
		row := &revenue[i]
		newRevenue := row.Balance - row.ClaimVaultAmount - row.AncestorsVaultAmount
		if newRevenue == 0 {
			continue
		}

		ancestorsShare, err := mulDiv(newRevenue, vault.UnclaimedShares, vault.TotalShares)
		if err != nil {
			return 0, err
		}
		pool := newRevenue - ancestorsShare

		if err := conn.Model(row).Updates(map[string]interface{}{
			"claim_vault_amount":     row.ClaimVaultAmount + pool,
			"ancestors_vault_amount": row.AncestorsVaultAmount + ancestorsShare,
		}).Error; err != nil {
			return 0, fmt.Errorf("failed to update vault revenue: %w", err)
		}

		snapshotPool := models.SnapshotPool{
			VaultIPID:  vault.IPID,
			SnapshotID: snapshotID,
			Token:      row.Token,
			Amount:     pool,
		}
		if err := conn.Create(&snapshotPool).Error; err != nil {
			return 0, fmt.Errorf("failed to record snapshot pool: %w", err)
		}
		distributed = true
	}
	if !distributed {
		return 0, ErrNoNewRevenueSinceLastSnapshot
	}

	snapshot := models.VaultSnapshot{
		VaultIPID:       vault.IPID,
		SnapshotID:      snapshotID,
		Timestamp:       now,
		UnclaimedShares: vault.UnclaimedShares,
	}
	if err := conn.Create(&snapshot).Error; err != nil {
		return 0, fmt.Errorf("failed to record snapshot: %w", err)
	}
	if err := conn.Model(vault).Updates(map[string]interface{}{
		"snapshot_count":   snapshotID,
		"last_snapshot_at": now,
	}).Error; err != nil {
		return 0, fmt.Errorf("failed to update vault: %w", err)
	}
	return snapshotID, nil
}

func (s *RoyaltyVaultService) Snapshots(ctx context.Context, ipID common.Address) ([]models.VaultSnapshot, error) {
	var snapshots []models.VaultSnapshot
	if err := database.Conn(ctx, s.db).Where("vault_ip_id = ?", ipID.Hex()).Order("snapshot_id").Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return snapshots, nil
}

func (s *RoyaltyVaultService) GetSnapshotPools(ctx context.Context, ipID common.Address, snapshotID uint64) ([]models.SnapshotPool, error) {
	var pools []models.SnapshotPool
	if err := database.Conn(ctx, s.db).
		Where("vault_ip_id = ? AND snapshot_id = ?", ipID.Hex(), snapshotID).
		Order("token").
		Find(&pools).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return pools, nil
}

// Claim pays holder its share of one snapshot's pool of token. The caller must be the
// holder or hold the claim permission on it.
func (s *RoyaltyVaultService) Claim(ctx context.Context, caller, ipID, holder common.Address, snapshotID uint64, token common.Address) (uint64, error) {
	return s.ClaimBySnapshotBatch(ctx, caller, ipID, holder, []uint64{snapshotID}, token)
}

func (s *RoyaltyVaultService) ClaimBySnapshotBatch(ctx context.Context, caller, ipID, holder common.Address, snapshotIDs []uint64, token common.Address) (uint64, error) {
	if len(snapshotIDs) == 0 {
		return 0, ErrEmptyBatch
	}

	var total uint64
	err := s.exec.Execute(ctx, "claimRevenue", func(ctx context.Context) error {
		if err := s.requireClaimer(ctx, caller, holder); err != nil {
			return err
		}
		amount, err := s.claimSnapshots(ctx, ipID, holder, snapshotIDs, token)
		total = amount
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *RoyaltyVaultService) ClaimByTokenBatch(ctx context.Context, caller, ipID, holder common.Address, snapshotID uint64, tokens []common.Address) (map[common.Address]uint64, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyBatch
	}

	claimed := make(map[common.Address]uint64, len(tokens))
	err := s.exec.Execute(ctx, "claimRevenue", func(ctx context.Context) error {
		if err := s.requireClaimer(ctx, caller, holder); err != nil {
			return err
		}
		for _, token := range tokens {
			amount, err := s.claimSnapshots(ctx, ipID, holder, []uint64{snapshotID}, token)
			if err != nil {
				return err
			}
			claimed[token] = amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *RoyaltyVaultService) requireClaimer(ctx context.Context, caller, holder common.Address) error {
	if caller == holder {
		return nil
	}
	allowed, err := s.access.HasPermission(ctx, holder, caller, ActionClaimRevenue)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("claim for %s: %w", holder.Hex(), ErrPermissionDenied)
	}
	return nil
}

func (s *RoyaltyVaultService) claimSnapshots(ctx context.Context, ipID, holder common.Address, snapshotIDs []uint64, token common.Address) (uint64, error) {
	vault, err := s.GetVault(ctx, ipID)
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, snapshotID := range snapshotIDs {
		amount, err := s.claim(ctx, vault, snapshotID, token, holder)
		if err != nil {
			return 0, err
		}
		if total, err = addAmount(total, amount); err != nil {
			return 0, err
		}
	}
	if total == 0 {
		return 0, nil
	}

	row, err := s.revenueToken(ctx, vault, token)
	if err != nil {
		return 0, err
	}
	if err := database.Conn(ctx, s.db).Model(row).Updates(map[string]interface{}{
		"balance":            row.Balance - total,
		"claim_vault_amount": row.ClaimVaultAmount - total,
	}).Error; err != nil {
		return 0, fmt.Errorf("failed to update vault revenue: %w", err)
	}
	if err := s.tokens.transfer(ctx, token, common.HexToAddress(vault.Address), holder, total); err != nil {
		return 0, err
	}

	if err := s.events.Emit(ctx, models.EventRevenueClaimed, ipID, holder, map[string]interface{}{
		"token":        token.Hex(),
		"snapshot_ids": snapshotIDs,
		"amount":       total,
	}); err != nil {
		return 0, err
	}
	return total, nil
}

// claim records one (snapshot, token, holder) claim and returns its amount.
func (s *RoyaltyVaultService) claim(ctx context.Context, vault *models.RoyaltyVault, snapshotID uint64, token, holder common.Address) (uint64, error) {
	if holder == common.HexToAddress(vault.Address) {
		return 0, ErrVaultCannotClaim
	}

	claimed, err := s.isClaimed(ctx, vault.IPID, snapshotID, token, holder)
	if err != nil {
		return 0, err
	}
	if claimed {
		return 0, fmt.Errorf("snapshot %d, token %s, holder %s: %w", snapshotID, token.Hex(), holder.Hex(), ErrRevenueAlreadyClaimed)
	}

	amount, err := s.claimableAt(ctx, vault, holder, snapshotID, token)
	if err != nil {
		return 0, err
	}

	record := models.RevenueClaim{
		VaultIPID:  vault.IPID,
		SnapshotID: snapshotID,
		Token:      token.Hex(),
		Holder:     holder.Hex(),
		Amount:     amount,
	}
	if err := database.Conn(ctx, s.db).Create(&record).Error; err != nil {
		return 0, fmt.Errorf("failed to record claim: %w", err)
	}
	return amount, nil
}

// claimableAt is holder's pro-rata part of the snapshot pool. Shares withheld for
// ancestors at the snapshot do not take part.
func (s *RoyaltyVaultService) claimableAt(ctx context.Context, vault *models.RoyaltyVault, holder common.Address, snapshotID uint64, token common.Address) (uint64, error) {
	snapshot, err := s.getSnapshot(ctx, vault.IPID, snapshotID)
	if err != nil {
		return 0, err
	}

	var pool models.SnapshotPool
	err = database.Conn(ctx, s.db).
		Where("vault_ip_id = ? AND snapshot_id = ? AND token = ?", vault.IPID, snapshotID, token.Hex()).
		First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("database error: %w", err)
	}

	balance, err := s.balanceAt(ctx, vault.IPID, holder, snapshotID)
	if err != nil {
		return 0, err
	}
	return mulDiv(balance, pool.Amount, vault.TotalShares-snapshot.UnclaimedShares)
}

// ClaimableRevenue is what holder can still claim from one snapshot of token.
func (s *RoyaltyVaultService) ClaimableRevenue(ctx context.Context, ipID, holder common.Address, snapshotID uint64, token common.Address) (uint64, error) {
	vault, err := s.GetVault(ctx, ipID)
	if err != nil {
		return 0, err
	}
	if holder == common.HexToAddress(vault.Address) {
		return 0, nil
	}
	claimed, err := s.isClaimed(ctx, vault.IPID, snapshotID, token, holder)
	if err != nil || claimed {
		return 0, err
	}
	return s.claimableAt(ctx, vault, holder, snapshotID, token)
}

// PendingClaimableRevenue estimates holder's part of the revenue not yet snapshotted
// from its current share balance. It is advisory and changes with balances.
func (s *RoyaltyVaultService) PendingClaimableRevenue(ctx context.Context, ipID, holder, token common.Address) (uint64, error) {
	vault, err := s.GetVault(ctx, ipID)
	if err != nil {
		return 0, err
	}
	if holder == common.HexToAddress(vault.Address) {
		return 0, nil
	}

	var row models.VaultRevenueToken
	err = database.Conn(ctx, s.db).Where("vault_ip_id = ? AND token = ?", vault.IPID, token.Hex()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("database error: %w", err)
	}
	pending := row.Balance - row.ClaimVaultAmount - row.AncestorsVaultAmount

	balance, err := s.ShareBalanceOf(ctx, ipID, holder)
	if err != nil {
		return 0, err
	}
	return mulDiv(pending, balance, vault.TotalShares)
}

func (s *RoyaltyVaultService) isClaimed(ctx context.Context, vaultIPID string, snapshotID uint64, token, holder common.Address) (bool, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.RevenueClaim{}).
		Where("vault_ip_id = ? AND snapshot_id = ? AND token = ? AND holder = ?", vaultIPID, snapshotID, token.Hex(), holder.Hex()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *RoyaltyVaultService) getSnapshot(ctx context.Context, vaultIPID string, snapshotID uint64) (*models.VaultSnapshot, error) {
	var snapshot models.VaultSnapshot
	err := database.Conn(ctx, s.db).
		Where("vault_ip_id = ? AND snapshot_id = ?", vaultIPID, snapshotID).
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("snapshot %d: %w", snapshotID, ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &snapshot, nil
}

// CollectRoyaltyTokens hands an ancestor its withheld shares together with its part
// of the ancestors' revenue reserve. Each ancestor collects once.
func (s *RoyaltyVaultService) CollectRoyaltyTokens(ctx context.Context, caller, ipID, ancestorIPID common.Address) (uint64, error) {
	var collectedShares uint64
	err := s.exec.Execute(ctx, "collectRoyaltyTokens", func(ctx context.Context) error {
		shares, err := s.collectRoyaltyTokens(ctx, ipID, ancestorIPID)
		if err != nil {
			return err
		}
		collectedShares = shares
		return s.events.Emit(ctx, models.EventRoyaltyTokensCollected, ipID, caller, map[string]interface{}{
			"ancestor": ancestorIPID.Hex(),
			"shares":   shares,
		})
	})
	if err != nil {
		return 0, err
	}
	return collectedShares, nil
}

func (s *RoyaltyVaultService) collectRoyaltyTokens(ctx context.Context, ipID, ancestorIPID common.Address) (uint64, error) {
	vault, err := s.GetVault(ctx, ipID)
	if err != nil {
		return 0, err
	}

	conn := database.Conn(ctx, s.db)
	var allocation models.AncestorRoyalty
	err = conn.Where("vault_ip_id = ? AND ancestor_ip_id = ?", vault.IPID, ancestorIPID.Hex()).First(&allocation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%s of %s: %w", ancestorIPID.Hex(), ipID.Hex(), ErrNotAncestor)
		}
		return 0, fmt.Errorf("database error: %w", err)
	}
	if allocation.Collected {
		return 0, fmt.Errorf("%s: %w", ancestorIPID.Hex(), ErrAncestorAlreadyCollected)
	}

	revenue, err := s.GetRevenueTokens(ctx, ipID)
	if err != nil {
		return 0, err
	}
	vaultAccount := common.HexToAddress(vault.Address)
	for i := range revenue {
		row := &revenue[i]
		amount, err := mulDiv(row.AncestorsVaultAmount, allocation.Shares, vault.UnclaimedShares)
		if err != nil {
			return 0, err
		}
		if amount == 0 {
			continue
		}
		if err := conn.Model(row).Updates(map[string]interface{}{
			"balance":                row.Balance - amount,
			"ancestors_vault_amount": row.AncestorsVaultAmount - amount,
		}).Error; err != nil {
			return 0, fmt.Errorf("failed to update vault revenue: %w", err)
		}
		if err := s.tokens.transfer(ctx, common.HexToAddress(row.Token), vaultAccount, ancestorIPID, amount); err != nil {
			return 0, err
		}
	}

	if err := s.moveShares(ctx, vault, vaultAccount, ancestorIPID, allocation.Shares); err != nil {
		return 0, err
	}
	if err := conn.Model(vault).Update("unclaimed_shares", vault.UnclaimedShares-allocation.Shares).Error; err != nil {
		return 0, fmt.Errorf("failed to update vault: %w", err)
	}
	if err := conn.Model(&allocation).Update("collected", true).Error; err != nil {
		return 0, fmt.Errorf("failed to update ancestor royalty: %w", err)
	}
	return allocation.Shares, nil
}

// TransferShares moves royalty shares between holders. Shares withheld for ancestors
// cannot be moved this way.
func (s *RoyaltyVaultService) TransferShares(ctx context.Context, caller, ipID common.Address, req *TransferSharesRequest) error {
	if req.From == (common.Address{}) || req.To == (common.Address{}) {
		return ErrZeroAddress
	}
	if req.Amount == 0 {
		return ErrZeroAmount
	}

	return s.exec.Execute(ctx, "transferRoyaltyShares", func(ctx context.Context) error {
		if caller != req.From {
			allowed, err := s.access.HasPermission(ctx, req.From, caller, ActionTransferShares)
			if err != nil {
				return err
			}
			if !allowed {
				return fmt.Errorf("transfer from %s: %w", req.From.Hex(), ErrPermissionDenied)
			}
		}

		vault, err := s.GetVault(ctx, ipID)
		if err != nil {
			return err
		}
		if req.From == common.HexToAddress(vault.Address) {
			return ErrVaultCannotClaim
		}
		if err := s.moveShares(ctx, vault, req.From, req.To, req.Amount); err != nil {
			return err
		}
		return s.events.Emit(ctx, models.EventSharesTransferred, ipID, caller, map[string]interface{}{
			"from":   req.From.Hex(),
			"to":     req.To.Hex(),
			"amount": req.Amount,
		})
	})
}

func (s *RoyaltyVaultService) moveShares(ctx context.Context, vault *models.RoyaltyVault, from, to common.Address, amount uint64) error {
	fromBalance, err := s.ShareBalanceOf(ctx, common.HexToAddress(vault.IPID), from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%s holds %d shares: %w", from.Hex(), fromBalance, ErrInsufficientShares)
	}
	if from == to {
		return nil
	}
	toBalance, err := s.ShareBalanceOf(ctx, common.HexToAddress(vault.IPID), to)
	if err != nil {
		return err
	}

	if err := s.setShareBalance(ctx, vault, from, fromBalance-amount); err != nil {
		return err
	}
	return s.setShareBalance(ctx, vault, to, toBalance+amount)
}

// setShareBalance stores the balance and checkpoints it at the current snapshot epoch.
func (s *RoyaltyVaultService) setShareBalance(ctx context.Context, vault *models.RoyaltyVault, holder common.Address, balance uint64) error {
	conn := database.Conn(ctx, s.db)

	row := models.ShareBalance{VaultIPID: vault.IPID, Holder: holder.Hex()}
	if err := conn.Where("vault_ip_id = ? AND holder = ?", vault.IPID, holder.Hex()).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("failed to load share balance: %w", err)
	}
	if err := conn.Model(&row).Update("balance", balance).Error; err != nil {
		return fmt.Errorf("failed to store share balance: %w", err)
	}

	checkpoint := models.ShareCheckpoint{VaultIPID: vault.IPID, Holder: holder.Hex(), Epoch: vault.SnapshotCount}
	if err := conn.Where("vault_ip_id = ? AND holder = ? AND epoch = ?", vault.IPID, holder.Hex(), vault.SnapshotCount).
		FirstOrCreate(&checkpoint).Error; err != nil {
		return fmt.Errorf("failed to load share checkpoint: %w", err)
	}
	if err := conn.Model(&checkpoint).Update("balance", balance).Error; err != nil {
		return fmt.Errorf("failed to store share checkpoint: %w", err)
	}
	return nil
}

func (s *RoyaltyVaultService) ShareBalanceOf(ctx context.Context, ipID, holder common.Address) (uint64, error) {
	var row models.ShareBalance
	err := database.Conn(ctx, s.db).Where("vault_ip_id = ? AND holder = ?", ipID.Hex(), holder.Hex()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("database error: %w", err)
	}
	return row.Balance, nil
}

// ShareBalanceOfAt returns holder's balance as frozen by a snapshot.
func (s *RoyaltyVaultService) ShareBalanceOfAt(ctx context.Context, ipID, holder common.Address, snapshotID uint64) (uint64, error) {
	if _, err := s.getSnapshot(ctx, ipID.Hex(), snapshotID); err != nil {
		return 0, err
	}
	return s.balanceAt(ctx, ipID.Hex(), holder, snapshotID)
}

// balanceAt reads the last checkpoint written before the snapshot was taken.
func (s *RoyaltyVaultService) balanceAt(ctx context.Context, vaultIPID string, holder common.Address, snapshotID uint64) (uint64, error) {
	var checkpoint models.ShareCheckpoint
	err := database.Conn(ctx, s.db).
		Where("vault_ip_id = ? AND holder = ? AND epoch < ?", vaultIPID, holder.Hex(), snapshotID).
		Order("epoch DESC").
		First(&checkpoint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("database error: %w", err)
	}
	return checkpoint.Balance, nil
}

func (s *RoyaltyVaultService) ShareHolders(ctx context.Context, ipID common.Address) ([]models.ShareBalance, error) {
	var rows []models.ShareBalance
	if err := database.Conn(ctx, s.db).
		Where("vault_ip_id = ? AND balance > 0", ipID.Hex()).
		Order("balance DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return rows, nil
}
