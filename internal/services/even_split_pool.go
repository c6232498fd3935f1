// internal/services/even_split_pool.go
package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
)

// EvenSplitPool splits each deposit equally across the group's current members.
// The remainder stays in the pool, booked under the group's own IP id.
type EvenSplitPool struct {
	db      *gorm.DB
	address common.Address
}

func NewEvenSplitPool(db *gorm.DB, address common.Address) *EvenSplitPool {
	return &EvenSplitPool{db: db, address: address}
}

func (p *EvenSplitPool) Address() common.Address {
	return p.address
}

// AddIP and RemoveIP need no bookkeeping: shares are computed from the members at
// deposit time, and removed members keep what they have accrued.
func (p *EvenSplitPool) AddIP(ctx context.Context, groupID, ipID common.Address) error {
	return nil
}

func (p *EvenSplitPool) RemoveIP(ctx context.Context, groupID, ipID common.Address) error {
	return nil
}

func (p *EvenSplitPool) DepositReward(ctx context.Context, groupID, token common.Address, amount uint64) error {
	conn := database.Conn(ctx, p.db)

	var members []models.GroupMember
	if err := conn.Where("group_ip_id = ?", groupID.Hex()).Order("id").Find(&members).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	var share uint64
	if len(members) > 0 {
		share = amount / uint64(len(members))
	}
	for _, member := range members {
		if err := p.credit(ctx, groupID, common.HexToAddress(member.MemberIPID), token, share); err != nil {
			return err
		}
	}
	return p.credit(ctx, groupID, groupID, token, amount-share*uint64(len(members)))
}

func (p *EvenSplitPool) PendingReward(ctx context.Context, groupID, token, ipID common.Address) (uint64, error) {
	row, err := p.balance(ctx, groupID, token, ipID)
	if err != nil {
		return 0, err
	}
	return row.Amount, nil
}

func (p *EvenSplitPool) ClaimReward(ctx context.Context, groupID, token, ipID common.Address) (uint64, error) {
	if ipID == groupID {
		return 0, ErrNotGroupMember
	}
	row, err := p.balance(ctx, groupID, token, ipID)
	if err != nil {
		return 0, err
	}
	amount := row.Amount
	if amount == 0 {
		return 0, nil
	}
	if err := database.Conn(ctx, p.db).Model(row).Update("amount", 0).Error; err != nil {
		return 0, fmt.Errorf("failed to update group reward: %w", err)
	}
	return amount, nil
}

func (p *EvenSplitPool) credit(ctx context.Context, groupID, ipID, token common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	row, err := p.balance(ctx, groupID, token, ipID)
	if err != nil {
		return err
	}
	total, err := addAmount(row.Amount, amount)
	if err != nil {
		return err
	}
	return database.Conn(ctx, p.db).Model(row).Update("amount", total).Error
}

func (p *EvenSplitPool) balance(ctx context.Context, groupID, token, ipID common.Address) (*models.GroupRewardBalance, error) {
	row := models.GroupRewardBalance{GroupIPID: groupID.Hex(), MemberIPID: ipID.Hex(), Token: token.Hex()}
	if err := database.Conn(ctx, p.db).
		Where("group_ip_id = ? AND member_ip_id = ? AND token = ?", groupID.Hex(), ipID.Hex(), token.Hex()).
		FirstOrCreate(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to load group reward: %w", err)
	}
	return &row, nil
}
