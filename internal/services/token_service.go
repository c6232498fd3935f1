// internal/services/token_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
)

// TokenService is the currency token ledger used to settle minting fees and royalties.
type TokenService struct {
	db      *gorm.DB
	exec    *Executor
	modules *ModuleRegistryService
}

func NewTokenService(db *gorm.DB, exec *Executor, modules *ModuleRegistryService) *TokenService {
	return &TokenService{
		db:      db,
		exec:    exec,
		modules: modules,
	}
}

func (s *TokenService) BalanceOf(ctx context.Context, token, account common.Address) (uint64, error) {
	var balance models.TokenBalance
	err := database.Conn(ctx, s.db).
		Where("token = ? AND account = ?", token.Hex(), account.Hex()).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("database error: %w", err)
	}
	return balance.Balance, nil
}

// Mint credits new currency to an account. Admin only; the token must be whitelisted.
func (s *TokenService) Mint(ctx context.Context, caller, token, to common.Address, amount uint64) error {
	if err := s.modules.RequireAdmin(caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}

	return s.exec.Execute(ctx, "mintCurrency", func(ctx context.Context) error {
		whitelisted, err := s.modules.IsRegistered(ctx, models.ModuleKindCurrencyToken, token)
		if err != nil {
			return err
		}
		if !whitelisted {
			return fmt.Errorf("%s: %w", token.Hex(), ErrCurrencyTokenNotWhitelisted)
		}
		return s.credit(ctx, token, to, amount)
	})
}

func (s *TokenService) Transfer(ctx context.Context, caller, token, to common.Address, amount uint64) error {
	return s.exec.Execute(ctx, "transferCurrency", func(ctx context.Context) error {
		return s.transfer(ctx, token, caller, to, amount)
	})
}

func (s *TokenService) transfer(ctx context.Context, token, from, to common.Address, amount uint64) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == 0 {
		return nil
	}
	if err := s.debit(ctx, token, from, amount); err != nil {
		return err
	}
	return s.credit(ctx, token, to, amount)
}

func (s *TokenService) debit(ctx context.Context, token, account common.Address, amount uint64) error {
	balance, err := s.balanceRow(ctx, token, account)
	if err != nil {
		return err
	}
	if balance.Balance < amount {
		return fmt.Errorf("%s has %d of %s, needs %d: %w", account.Hex(), balance.Balance, token.Hex(), amount, ErrInsufficientBalance)
	}
	return database.Conn(ctx, s.db).Model(balance).Update("balance", balance.Balance-amount).Error
}

func (s *TokenService) credit(ctx context.Context, token, account common.Address, amount uint64) error {
	balance, err := s.balanceRow(ctx, token, account)
	if err != nil {
		return err
	}
	total, err := addAmount(balance.Balance, amount)
	if err != nil {
		return err
	}
	return database.Conn(ctx, s.db).Model(balance).Update("balance", total).Error
}

func (s *TokenService) balanceRow(ctx context.Context, token, account common.Address) (*models.TokenBalance, error) {
	balance := models.TokenBalance{Token: token.Hex(), Account: account.Hex()}
	err := database.Conn(ctx, s.db).
		Where("token = ? AND account = ?", token.Hex(), account.Hex()).
		FirstOrCreate(&balance).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return &balance, nil
}
