package services

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/imi-licensing/internal/models"
)

type GroupTestSuite struct {
	protocolFixture
	group   common.Address
	termsID uint64
}

// SetupTest registers alice's group IP under commercial terms priced at 1001.
func (suite *GroupTestSuite) SetupTest() {
	suite.protocolFixture.SetupTest()
	suite.termsID = suite.registerTerms(suite.commercialRemix(10*percent, 1001))
	suite.group = suite.registerIP(alice)
	suite.Require().NoError(suite.registerGroup(alice, suite.group, suite.pool()))
	suite.Require().NoError(suite.attach(alice, suite.group, suite.termsID))
}

func (suite *GroupTestSuite) pool() common.Address {
	return suite.protocol.EvenSplitPool.Address()
}

func (suite *GroupTestSuite) registerGroup(caller, ipID, pool common.Address) error {
	return suite.protocol.Groups.RegisterGroup(suite.ctx, caller, &RegisterGroupRequest{GroupIPID: ipID, RewardPool: pool})
}

// member registers an IP for owner carrying the group's terms.
func (suite *GroupTestSuite) member(owner common.Address) common.Address {
	ip := suite.registerIP(owner)
	suite.Require().NoError(suite.attach(owner, ip, suite.termsID))
	return ip
}

func (suite *GroupTestSuite) add(caller common.Address, members ...common.Address) error {
	return suite.protocol.Groups.AddGroupMembers(suite.ctx, caller, suite.group, members)
}

func (suite *GroupTestSuite) TestRegisterGroup() {
	isGroup, err := suite.protocol.Groups.IsGroup(suite.ctx, suite.group)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), isGroup)

	group, err := suite.protocol.Groups.GetGroup(suite.ctx, suite.group)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.pool().Hex(), group.RewardPool)

	parent := suite.registerIP(carol)
	derivative := suite.registerIP(alice)
	suite.Require().NoError(suite.registerDerivative(alice, derivative, []common.Address{parent}, []uint64{suite.defaultTermsID()}))

	tests := []struct {
		name   string
		caller common.Address
		ipID   common.Address
		pool   common.Address
		err    error
	}{
		{"unregistered", alice, common.HexToAddress("0x0000000000000000000000000000000000000123"), suite.pool(), ErrIPNotRegistered},
		{"not owner", bob, suite.registerIP(alice), suite.pool(), ErrPermissionDenied},
		{"already a group", alice, suite.group, suite.pool(), ErrAlreadyGroup},
		{"derivative", alice, derivative, suite.pool(), ErrGroupCannotBeDerivative},
		{"unknown pool", alice, suite.registerIP(alice), currency, ErrInvalidGroupRewardPool},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			assert.ErrorIs(suite.T(), suite.registerGroup(tt.caller, tt.ipID, tt.pool), tt.err)
		})
	}

	err = suite.registerDerivative(alice, suite.group, []common.Address{parent}, []uint64{suite.defaultTermsID()})
	assert.ErrorIs(suite.T(), err, ErrGroupCannotBeDerivative)
	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventGroupRegistered))
}

func (suite *GroupTestSuite) TestAddAndRemoveMembers() {
	first := suite.member(bob)
	second := suite.member(carol)

	assert.NoError(suite.T(), suite.add(alice, first, second))
	members, err := suite.protocol.Groups.GetGroupMembers(suite.ctx, suite.group)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), []common.Address{first, second}, members)

	assert.ErrorIs(suite.T(), suite.add(alice, first), ErrAlreadyGroupMember)

	err = suite.protocol.Groups.RemoveGroupMembers(suite.ctx, alice, suite.group, []common.Address{suite.member(bob)})
	assert.ErrorIs(suite.T(), err, ErrNotGroupMember)

	assert.NoError(suite.T(), suite.protocol.Groups.RemoveGroupMembers(suite.ctx, alice, suite.group, []common.Address{second}))
	isMember, err := suite.protocol.Groups.IsGroupMember(suite.ctx, suite.group, second)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), isMember)

	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventGroupMembersAdded))
	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventGroupMembersRemoved))
}

func (suite *GroupTestSuite) TestAddMembersRejects() {
	suite.Run("empty batch", func() {
		assert.ErrorIs(suite.T(), suite.add(alice), ErrEmptyBatch)
	})
	suite.Run("not a group", func() {
		err := suite.protocol.Groups.AddGroupMembers(suite.ctx, alice, suite.registerIP(alice), []common.Address{suite.member(bob)})
		assert.ErrorIs(suite.T(), err, ErrNotGroup)
	})
	suite.Run("not manager", func() {
		assert.ErrorIs(suite.T(), suite.add(bob, suite.member(bob)), ErrPermissionDenied)
	})
	suite.Run("unregistered member", func() {
		assert.ErrorIs(suite.T(), suite.add(alice, common.HexToAddress("0x0000000000000000000000000000000000000123")), ErrIPNotRegistered)
	})
	suite.Run("missing group license", func() {
		assert.ErrorIs(suite.T(), suite.add(alice, suite.registerIP(bob)), ErrMemberMissingGroupLicense)
	})
	suite.Run("group as member", func() {
		nested := suite.member(alice)
		suite.Require().NoError(suite.registerGroup(alice, nested, suite.pool()))
		assert.ErrorIs(suite.T(), suite.add(alice, nested), ErrGroupMemberIsGroup)
	})
	suite.Run("disputed member", func() {
		disputed := suite.member(bob)
		_, err := suite.protocol.Disputes.TagIP(suite.ctx, admin, disputed, &TagIPRequest{Tag: "PLAGIARISM"})
		suite.Require().NoError(err)
		assert.ErrorIs(suite.T(), suite.add(alice, disputed), ErrIPDisputed)
	})
	suite.Run("batch is atomic", func() {
		err := suite.add(alice, suite.member(bob), suite.registerIP(bob))
		assert.ErrorIs(suite.T(), err, ErrMemberMissingGroupLicense)
		members, err := suite.protocol.Groups.GetGroupMembers(suite.ctx, suite.group)
		assert.NoError(suite.T(), err)
		assert.Empty(suite.T(), members)
	})
}

func (suite *GroupTestSuite) TestGroupSizeLimit() {
	p := suite.protocol
	groups := NewGroupService(suite.db, p.Executor, p.Events, p.Modules, p.Registry, p.Vaults, p.Tokens, p.IPs, p.IPs, p.Disputes, 2)

	assert.NoError(suite.T(), groups.AddGroupMembers(suite.ctx, alice, suite.group, []common.Address{suite.member(bob)}))
	err := groups.AddGroupMembers(suite.ctx, alice, suite.group, []common.Address{suite.member(bob), suite.member(carol)})
	assert.ErrorIs(suite.T(), err, ErrGroupSizeExceeded)
}

func (suite *GroupTestSuite) TestGroupWithDerivativesIsFrozen() {
	first := suite.member(bob)
	assert.NoError(suite.T(), suite.add(alice, first))

	child := suite.registerIP(carol)
	assert.NoError(suite.T(), suite.registerDerivative(carol, child, []common.Address{suite.group}, []uint64{suite.defaultTermsID()}))

	assert.ErrorIs(suite.T(), suite.add(alice, suite.member(bob)), ErrGroupFrozen)
	err := suite.protocol.Groups.RemoveGroupMembers(suite.ctx, alice, suite.group, []common.Address{first})
	assert.ErrorIs(suite.T(), err, ErrGroupFrozen)
}

func (suite *GroupTestSuite) TestCollectAndClaimRewards() {
	first := suite.member(bob)
	second := suite.member(carol)
	suite.Require().NoError(suite.add(alice, first, second))

	suite.fund(bob, 1001)
	_, err := suite.mint(bob, suite.group, suite.termsID, 1, bob)
	suite.Require().NoError(err)
	snapshotID, err := suite.protocol.Vaults.Snapshot(suite.ctx, alice, suite.group)
	suite.Require().NoError(err)

	_, err = suite.protocol.Groups.CollectGroupRoyalties(suite.ctx, alice, suite.group, &CollectGroupRoyaltiesRequest{Token: currency})
	assert.ErrorIs(suite.T(), err, ErrEmptyBatch)

	collect := &CollectGroupRoyaltiesRequest{Token: currency, SnapshotIDs: []uint64{snapshotID}}
	collected, err := suite.protocol.Groups.CollectGroupRoyalties(suite.ctx, alice, suite.group, collect)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(1001), collected)
	assert.Equal(suite.T(), uint64(1001), suite.balance(suite.pool()))
	assert.Zero(suite.T(), suite.balance(suite.group))

	_, err = suite.protocol.Groups.CollectGroupRoyalties(suite.ctx, alice, suite.group, collect)
	assert.ErrorIs(suite.T(), err, ErrRevenueAlreadyClaimed)

	for ip, want := range map[common.Address]uint64{first: 500, second: 500, suite.group: 1} {
		pending, err := suite.protocol.Groups.PendingGroupReward(suite.ctx, suite.group, currency, ip)
		assert.NoError(suite.T(), err)
		assert.Equal(suite.T(), want, pending)
	}

	claimed, err := suite.protocol.Groups.ClaimGroupReward(suite.ctx, carol, suite.group, currency, first)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), uint64(500), claimed)
	assert.Equal(suite.T(), uint64(500), suite.balance(first))
	assert.Equal(suite.T(), uint64(501), suite.balance(suite.pool()))

	again, err := suite.protocol.Groups.ClaimGroupReward(suite.ctx, carol, suite.group, currency, first)
	assert.NoError(suite.T(), err)
	assert.Zero(suite.T(), again)

	_, err = suite.protocol.Groups.ClaimGroupReward(suite.ctx, carol, suite.group, currency, suite.group)
	assert.ErrorIs(suite.T(), err, ErrNotGroupMember)

	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventGroupRoyaltiesCollected))
	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventGroupRewardClaimed))
}

func TestGroupTestSuite(t *testing.T) {
	suite.Run(t, new(GroupTestSuite))
}
