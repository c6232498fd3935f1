package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type ProtocolTestSuite struct {
	protocolFixture
}

func (suite *ProtocolTestSuite) TestBootstrapRegistersBuiltInModules() {
	for kind, address := range map[models.ModuleKind]common.Address{
		models.ModuleKindLicenseTemplate: suite.template(),
		models.ModuleKindRoyaltyPolicy:   suite.lap(),
		models.ModuleKindGroupRewardPool: suite.protocol.EvenSplitPool.Address(),
		models.ModuleKindCurrencyToken:   currency,
	} {
		registered, err := suite.protocol.Modules.IsRegistered(suite.ctx, kind, address)
		assert.NoError(suite.T(), err)
		assert.True(suite.T(), registered, kind)
	}
}

func (suite *ProtocolTestSuite) TestBootstrapSetsDefaultTerms() {
	defaults, err := suite.protocol.Registry.GetDefaultLicenseTerms(suite.ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.template(), defaults.Template)
	assert.Equal(suite.T(), uint64(1), defaults.TermsID)

	terms, err := suite.protocol.PILTemplate.GetLicenseTerms(suite.ctx, defaults.TermsID)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), terms.CommercialUse)
	assert.True(suite.T(), terms.DerivativesAllowed)
	assert.True(suite.T(), terms.DerivativesReciprocal)
}

func (suite *ProtocolTestSuite) TestBootstrapIsIdempotent() {
	assert.NoError(suite.T(), suite.protocol.Bootstrap(suite.ctx))

	modules, err := suite.protocol.Modules.ListModules(suite.ctx, "")
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), modules, 4)

	total, err := suite.protocol.PILTemplate.TotalRegisteredLicenseTerms(suite.ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
}

func (suite *ProtocolTestSuite) TestPauseBlocksMutations() {
	assert.ErrorIs(suite.T(), suite.protocol.Pause(suite.ctx, alice), ErrNotProtocolAdmin)

	assert.NoError(suite.T(), suite.protocol.Pause(suite.ctx, admin))
	assert.NoError(suite.T(), suite.protocol.Pause(suite.ctx, admin))
	assert.True(suite.T(), suite.protocol.Paused())
	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventProtocolPaused))

	_, err := suite.protocol.IPs.RegisterIP(suite.ctx, alice, &RegisterIPRequest{
		ChainID:       1,
		TokenContract: nftContract.Hex(),
		TokenID:       99,
	})
	assert.ErrorIs(suite.T(), err, ErrProtocolPaused)
	assert.Equal(suite.T(), KindPaused, KindOf(err))

	// Reads still work.
	_, err = suite.protocol.Tokens.BalanceOf(suite.ctx, currency, alice)
	assert.NoError(suite.T(), err)

	assert.ErrorIs(suite.T(), suite.protocol.Unpause(suite.ctx, alice), ErrNotProtocolAdmin)
	assert.NoError(suite.T(), suite.protocol.Unpause(suite.ctx, admin))
	assert.False(suite.T(), suite.protocol.Paused())
	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventProtocolUnpaused))

	suite.registerIP(alice)
}

func (suite *ProtocolTestSuite) TestExecutorRejectsReentrantCalls() {
	var inner error
	err := suite.protocol.Executor.Execute(suite.ctx, "outer", func(ctx context.Context) error {
		inner = suite.protocol.Executor.Execute(ctx, "inner", func(ctx context.Context) error {
			return nil
		})
		return nil
	})
	assert.NoError(suite.T(), err)
	assert.ErrorIs(suite.T(), inner, ErrReentrantCall)
}

func (suite *ProtocolTestSuite) TestExecutorRollsBackFailedOperation() {
	ipID := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	committed := false

	err := suite.protocol.Executor.Execute(suite.ctx, "failing", func(ctx context.Context) error {
		if err := suite.protocol.Events.Emit(ctx, models.EventIPRegistered, ipID, alice, nil); err != nil {
			return err
		}
		onCommit(ctx, func() { committed = true })
		return ErrPermissionDenied
	})
	assert.ErrorIs(suite.T(), err, ErrPermissionDenied)
	assert.False(suite.T(), committed)

	events, total, err := suite.protocol.Events.SearchEvents(suite.ctx, EventSearchParams{IPID: &ipID})
	assert.NoError(suite.T(), err)
	assert.Zero(suite.T(), total)
	assert.Empty(suite.T(), events)
}

func (suite *ProtocolTestSuite) TestOnCommitRunsAfterCommit() {
	var order []string
	err := suite.protocol.Executor.Execute(suite.ctx, "ordered", func(ctx context.Context) error {
		onCommit(ctx, func() { order = append(order, "hook") })
		order = append(order, "body")
		return nil
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"body", "hook"}, order)

	ran := false
	onCommit(suite.ctx, func() { ran = true })
	assert.True(suite.T(), ran)
}

func (suite *ProtocolTestSuite) TestSearchEventsFiltersByType() {
	first := suite.registerIP(alice)
	suite.registerIP(bob)

	eventType := models.EventIPRegistered
	events, total, err := suite.protocol.Events.SearchEvents(suite.ctx, EventSearchParams{Type: &eventType})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), total)
	assert.Len(suite.T(), events, 2)

	events, total, err = suite.protocol.Events.SearchEvents(suite.ctx, EventSearchParams{IPID: &first})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
	assert.Equal(suite.T(), first.Hex(), events[0].IPID)
	assert.Equal(suite.T(), alice.Hex(), events[0].Caller)
}

func TestProtocolSuite(t *testing.T) {
	suite.Run(t, new(ProtocolTestSuite))
}

type ModuleRegistryTestSuite struct {
	protocolFixture
}

func (suite *ModuleRegistryTestSuite) TestRegisterAndRemoveModule() {
	hookAddress := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	modules := suite.protocol.Modules

	err := modules.RegisterModule(suite.ctx, alice, hookAddress, models.ModuleKindLicensingHook, "hook")
	assert.ErrorIs(suite.T(), err, ErrNotProtocolAdmin)
	assert.Equal(suite.T(), KindAuthorization, KindOf(err))

	assert.NoError(suite.T(), modules.RegisterModule(suite.ctx, admin, hookAddress, models.ModuleKindLicensingHook, "hook"))
	assert.NoError(suite.T(), modules.RegisterModule(suite.ctx, admin, hookAddress, models.ModuleKindLicensingHook, "hook"))
	assert.ErrorIs(suite.T(), modules.RegisterModule(suite.ctx, admin, common.Address{}, models.ModuleKindLicensingHook, ""), ErrZeroAddress)

	hooks, err := modules.ListModules(suite.ctx, models.ModuleKindLicensingHook)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), hooks, 1)
	assert.Equal(suite.T(), "hook", hooks[0].Name)

	assert.NoError(suite.T(), modules.RemoveModule(suite.ctx, admin, hookAddress, models.ModuleKindLicensingHook))
	registered, err := modules.IsRegistered(suite.ctx, models.ModuleKindLicensingHook, hookAddress)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), registered)
}

func (suite *ModuleRegistryTestSuite) TestLicensingHookResolution() {
	hookAddress := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	modules := suite.protocol.Modules

	_, err := modules.LicensingHook(suite.ctx, hookAddress)
	assert.ErrorIs(suite.T(), err, ErrInvalidLicensingHook)

	suite.Require().NoError(modules.RegisterModule(suite.ctx, admin, hookAddress, models.ModuleKindLicensingHook, ""))
	_, err = modules.LicensingHook(suite.ctx, hookAddress)
	assert.ErrorIs(suite.T(), err, ErrLicensingHookNotFound)

	modules.Bind(hookAddress, "not a hook")
	_, err = modules.LicensingHook(suite.ctx, hookAddress)
	assert.ErrorIs(suite.T(), err, ErrInvalidLicensingHook)

	hook := &fixedFeeHook{fee: 7}
	modules.Bind(hookAddress, hook)
	resolved, err := modules.LicensingHook(suite.ctx, hookAddress)
	assert.NoError(suite.T(), err)
	assert.Same(suite.T(), hook, resolved)
}

func (suite *ModuleRegistryTestSuite) TestCapabilityLookups() {
	modules := suite.protocol.Modules
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000b3")

	_, err := modules.CommercializerChecker(unknown)
	assert.ErrorIs(suite.T(), err, ErrInvalidCommercializerChecker)

	_, err = modules.RoyaltyPolicy(suite.ctx, unknown)
	assert.ErrorIs(suite.T(), err, ErrRoyaltyPolicyNotWhitelisted)

	_, err = modules.GroupRewardPool(suite.ctx, unknown)
	assert.ErrorIs(suite.T(), err, ErrInvalidGroupRewardPool)

	_, err = modules.LicenseTemplate(suite.ctx, unknown)
	assert.ErrorIs(suite.T(), err, ErrUnregisteredLicenseTemplate)

	policy, err := modules.RoyaltyPolicy(suite.ctx, suite.lap())
	assert.NoError(suite.T(), err)
	assert.Same(suite.T(), suite.protocol.LAPPolicy, policy)
}

func (suite *ModuleRegistryTestSuite) TestRequireAdminWithoutConfiguredAdmin() {
	modules := NewModuleRegistryService(suite.db, suite.protocol.Executor, common.Address{})
	assert.ErrorIs(suite.T(), modules.RequireAdmin(common.Address{}), ErrNotProtocolAdmin)
	assert.ErrorIs(suite.T(), modules.RequireAdmin(admin), ErrNotProtocolAdmin)
}

func TestModuleRegistrySuite(t *testing.T) {
	suite.Run(t, new(ModuleRegistryTestSuite))
}

type IPServiceTestSuite struct {
	protocolFixture
}

func (suite *IPServiceTestSuite) TestRegisterIP() {
	asset, err := suite.protocol.IPs.RegisterIP(suite.ctx, alice, &RegisterIPRequest{
		ChainID:       1,
		TokenContract: nftContract.Hex(),
		TokenID:       42,
		Name:          "Genesis",
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), IPID(1, nftContract, 42).Hex(), asset.IPID)
	assert.Equal(suite.T(), alice.Hex(), asset.Owner)
	assert.Equal(suite.T(), suite.unixNow(), asset.RegisteredAt)

	ipID := common.HexToAddress(asset.IPID)
	owner, err := suite.protocol.IPs.OwnerOf(suite.ctx, ipID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), alice, owner)

	_, err = suite.protocol.IPs.RegisterIP(suite.ctx, bob, &RegisterIPRequest{
		ChainID:       1,
		TokenContract: nftContract.Hex(),
		TokenID:       42,
	})
	assert.ErrorIs(suite.T(), err, ErrIPAlreadyRegistered)
	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventIPRegistered))
}

func (suite *IPServiceTestSuite) TestRegisterIPValidation() {
	_, err := suite.protocol.IPs.RegisterIP(suite.ctx, alice, &RegisterIPRequest{
		ChainID:       1,
		TokenContract: common.Address{}.Hex(),
	})
	assert.Error(suite.T(), err)
	assert.Equal(suite.T(), KindValidation, KindOf(err))

	_, err = suite.protocol.IPs.RegisterIP(suite.ctx, alice, &RegisterIPRequest{
		TokenContract: nftContract.Hex(),
	})
	assert.Equal(suite.T(), KindValidation, KindOf(err))

	_, err = suite.protocol.IPs.GetIPAsset(suite.ctx, IPID(1, nftContract, 1000))
	assert.ErrorIs(suite.T(), err, ErrIPAssetNotFound)
}

func (suite *IPServiceTestSuite) TestIPIDIsDeterministic() {
	assert.Equal(suite.T(), IPID(1, nftContract, 7), IPID(1, nftContract, 7))
	assert.NotEqual(suite.T(), IPID(1, nftContract, 7), IPID(2, nftContract, 7))
	assert.NotEqual(suite.T(), IPID(1, nftContract, 7), IPID(1, nftContract, 8))
}

func (suite *IPServiceTestSuite) TestPermissions() {
	ipID := suite.registerIP(alice)
	ips := suite.protocol.IPs

	for _, caller := range []common.Address{alice, ipID} {
		allowed, err := ips.HasPermission(suite.ctx, ipID, caller, "attachLicenseTerms")
		assert.NoError(suite.T(), err)
		assert.True(suite.T(), allowed)
	}

	allowed, err := ips.HasPermission(suite.ctx, ipID, bob, "attachLicenseTerms")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed)

	err = ips.SetPermission(suite.ctx, bob, ipID, &SetPermissionRequest{Signer: carol.Hex(), Allowed: true})
	assert.ErrorIs(suite.T(), err, ErrPermissionDenied)

	// Wildcard grant, narrowed by a specific denial.
	suite.Require().NoError(ips.SetPermission(suite.ctx, alice, ipID, &SetPermissionRequest{Signer: bob.Hex(), Allowed: true}))
	suite.Require().NoError(ips.SetPermission(suite.ctx, alice, ipID, &SetPermissionRequest{
		Signer:  bob.Hex(),
		Action:  "setLicensingConfig",
		Allowed: false,
	}))

	allowed, err = ips.HasPermission(suite.ctx, ipID, bob, "attachLicenseTerms")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), allowed)

	allowed, err = ips.HasPermission(suite.ctx, ipID, bob, "setLicensingConfig")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed)

	// Updating a grant flips it in place.
	suite.Require().NoError(ips.SetPermission(suite.ctx, alice, ipID, &SetPermissionRequest{Signer: bob.Hex(), Allowed: false}))
	allowed, err = ips.HasPermission(suite.ctx, ipID, bob, "attachLicenseTerms")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed)

	err = ips.SetPermission(suite.ctx, alice, ipID, &SetPermissionRequest{Signer: bob.Hex(), Action: "burnEverything"})
	assert.Equal(suite.T(), KindValidation, KindOf(err))
}

func TestIPServiceSuite(t *testing.T) {
	suite.Run(t, new(IPServiceTestSuite))
}

type DisputeTestSuite struct {
	protocolFixture
}

func (suite *DisputeTestSuite) TestTagAndResolve() {
	ipID := suite.registerIP(alice)
	disputes := suite.protocol.Disputes

	_, err := disputes.TagIP(suite.ctx, alice, ipID, &TagIPRequest{Tag: "PLAGIARISM"})
	assert.ErrorIs(suite.T(), err, ErrNotProtocolAdmin)

	_, err = disputes.TagIP(suite.ctx, admin, ipID, &TagIPRequest{})
	assert.Equal(suite.T(), KindValidation, KindOf(err))

	first, err := disputes.TagIP(suite.ctx, admin, ipID, &TagIPRequest{Tag: "PLAGIARISM", Evidence: "ipfs://evidence"})
	suite.Require().NoError(err)
	second, err := disputes.TagIP(suite.ctx, admin, ipID, &TagIPRequest{Tag: "IMPROPER_USAGE"})
	suite.Require().NoError(err)

	tagged, err := disputes.IsTagged(suite.ctx, ipID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), tagged)

	suite.Require().NoError(disputes.ResolveDispute(suite.ctx, admin, first.ID))
	suite.Require().NoError(disputes.ResolveDispute(suite.ctx, admin, first.ID))
	tagged, err = disputes.IsTagged(suite.ctx, ipID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), tagged)

	suite.Require().NoError(disputes.ResolveDispute(suite.ctx, admin, second.ID))
	tagged, err = disputes.IsTagged(suite.ctx, ipID)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), tagged)

	all, err := disputes.GetDisputes(suite.ctx, ipID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), all, 2)
	assert.Equal(suite.T(), int64(2), suite.countEvents(models.EventDisputeResolved))

	assert.ErrorIs(suite.T(), disputes.ResolveDispute(suite.ctx, admin, 999), ErrDisputeNotFound)
}

func TestDisputeSuite(t *testing.T) {
	suite.Run(t, new(DisputeTestSuite))
}

type TokenServiceTestSuite struct {
	protocolFixture
}

func (suite *TokenServiceTestSuite) TestMintAndTransfer() {
	tokens := suite.protocol.Tokens

	assert.ErrorIs(suite.T(), tokens.Mint(suite.ctx, alice, currency, alice, 10), ErrNotProtocolAdmin)
	assert.ErrorIs(suite.T(), tokens.Mint(suite.ctx, admin, currency, common.Address{}, 10), ErrZeroAddress)
	assert.ErrorIs(suite.T(), tokens.Mint(suite.ctx, admin, currency, alice, 0), ErrZeroAmount)

	other := common.HexToAddress("0x000000000000000000000000000000000000dead")
	assert.ErrorIs(suite.T(), tokens.Mint(suite.ctx, admin, other, alice, 10), ErrCurrencyTokenNotWhitelisted)

	suite.fund(alice, 100)
	assert.NoError(suite.T(), tokens.Transfer(suite.ctx, alice, currency, bob, 40))
	assert.Equal(suite.T(), uint64(60), suite.balance(alice))
	assert.Equal(suite.T(), uint64(40), suite.balance(bob))

	err := tokens.Transfer(suite.ctx, bob, currency, alice, 41)
	assert.ErrorIs(suite.T(), err, ErrInsufficientBalance)
	assert.Equal(suite.T(), uint64(40), suite.balance(bob))

	assert.NoError(suite.T(), tokens.Transfer(suite.ctx, carol, currency, alice, 0))
	assert.ErrorIs(suite.T(), tokens.Transfer(suite.ctx, alice, currency, common.Address{}, 1), ErrZeroAddress)
}

func TestTokenServiceSuite(t *testing.T) {
	suite.Run(t, new(TokenServiceTestSuite))
}

func TestMulDiv(t *testing.T) {
	got, err := mulDiv(1000, 10_000_000, TotalRoyaltyShares)
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), got)

	got, err = mulDiv(7, 3, 2)
	assert.NoError(t, err)
	assert.Equal(t, uint64(10), got)

	got, err = mulDiv(5, 5, 0)
	assert.NoError(t, err)
	assert.Zero(t, got)

	// The intermediate product may exceed 64 bits as long as the quotient fits.
	got, err = mulDiv(1<<63, 4, 8)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1<<62), got)

	_, err = mulDiv(1<<63, 4, 1)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	sum, err := addAmount(2, 3)
	assert.NoError(t, err)
	assert.Equal(t, uint64(5), sum)

	_, err = addAmount(^uint64(0), 1)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	product, err := mulAmount(6, 7)
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), product)

	_, err = mulAmount(1<<32, 1<<32)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{nil, ""},
		{ErrZeroAmount, KindValidation},
		{fmt.Errorf("wrapped: %w", ErrIPExpired), KindState},
		{ErrNotLicenseTokenOwner, KindAuthorization},
		{ErrLicensingHookDenied, KindDenied},
		{ErrRoyaltyVaultNotFound, KindNotFound},
		{ErrProtocolPaused, KindPaused},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.err), fmt.Sprint(tt.err))
	}

	err := utils.ValidateStruct(&TagIPRequest{})
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("validation failed: %w", err)))
}

func TestOpenTestDBIsolation(t *testing.T) {
	first, err := openTestDB(testConfig())
	if !assert.NoError(t, err) {
		return
	}
	defer database.Close(first)
	second, err := openTestDB(testConfig())
	if !assert.NoError(t, err) {
		return
	}
	defer database.Close(second)

	assert.NoError(t, first.Create(&models.ProtocolSetting{Key: "k", Value: "v"}).Error)
	var count int64
	assert.NoError(t, second.Model(&models.ProtocolSetting{}).Count(&count).Error)
	assert.Zero(t, count)
}
