package services

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type LicenseTokenTestSuite struct {
	protocolFixture
	licensor common.Address
	termsID  uint64
}

func (suite *LicenseTokenTestSuite) SetupTest() {
	suite.protocolFixture.SetupTest()
	suite.licensor = suite.registerIP(alice)
	suite.termsID = suite.registerTerms(suite.commercialRemix(10*percent, 0))
	suite.Require().NoError(suite.attach(alice, suite.licensor, suite.termsID))
}

func (suite *LicenseTokenTestSuite) transfer(caller common.Address, tokenID uint64, to common.Address) error {
	return suite.protocol.LicenseTokens.TransferLicenseToken(suite.ctx, caller, tokenID, to)
}

func (suite *LicenseTokenTestSuite) TestTransfer() {
	tokenID, err := suite.mint(bob, suite.licensor, suite.termsID, 1, bob)
	suite.Require().NoError(err)

	assert.NoError(suite.T(), suite.transfer(bob, tokenID, carol))
	token, err := suite.protocol.LicenseTokens.GetLicenseToken(suite.ctx, tokenID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), carol.Hex(), token.Owner)

	assert.ErrorIs(suite.T(), suite.transfer(bob, tokenID, bob), ErrNotLicenseTokenOwner)
	assert.ErrorIs(suite.T(), suite.transfer(carol, tokenID, common.Address{}), ErrZeroAddress)
	assert.ErrorIs(suite.T(), suite.transfer(carol, 404, bob), ErrLicenseTokenNotFound)
	assert.Equal(suite.T(), int64(1), suite.countEvents(models.EventLicenseTokenTransferred))
}

func (suite *LicenseTokenTestSuite) TestNonTransferableTokens() {
	locked := NonCommercialSocialRemixingTerms()
	locked.Transferable = false
	lockedID := suite.registerTerms(locked)

	tokenID, err := suite.mint(alice, suite.licensor, lockedID, 1, suite.licensor)
	suite.Require().NoError(err)

	token, err := suite.protocol.LicenseTokens.GetLicenseToken(suite.ctx, tokenID)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), token.Transferable)

	// The licensor IP may hand out its own non-transferable tokens.
	assert.NoError(suite.T(), suite.transfer(suite.licensor, tokenID, bob))
	assert.ErrorIs(suite.T(), suite.transfer(bob, tokenID, carol), ErrLicenseTokenNotTransferable)
}

func (suite *LicenseTokenTestSuite) TestBurnedTokensCannotMove() {
	tokenID, err := suite.mint(bob, suite.licensor, suite.termsID, 1, bob)
	suite.Require().NoError(err)

	child := suite.registerIP(bob)
	suite.Require().NoError(suite.protocol.Licensing.RegisterDerivativeWithLicenseTokens(suite.ctx, bob, &RegisterDerivativeWithTokensRequest{
		ChildIPID:       child,
		LicenseTokenIDs: []uint64{tokenID},
	}))

	assert.ErrorIs(suite.T(), suite.transfer(bob, tokenID, carol), ErrLicenseTokenBurned)
}

func (suite *LicenseTokenTestSuite) TestMixedTemplatesRejected() {
	otherTemplate := common.HexToAddress("0x0000000000000000000000000000000000001010")

	first, err := suite.mint(bob, suite.licensor, suite.termsID, 1, bob)
	suite.Require().NoError(err)

	// Tokens are checked for a common template before any template is resolved.
	suite.Require().NoError(suite.db.Model(&models.LicenseToken{}).
		Where("token_id = ?", first).
		Update("template", otherTemplate.Hex()).Error)
	second, err := suite.mint(bob, suite.licensor, suite.termsID, 1, bob)
	suite.Require().NoError(err)

	err = suite.protocol.Licensing.RegisterDerivativeWithLicenseTokens(suite.ctx, bob, &RegisterDerivativeWithTokensRequest{
		ChildIPID:       suite.registerIP(bob),
		LicenseTokenIDs: []uint64{first, second},
	})
	assert.ErrorIs(suite.T(), err, ErrLicenseTokensTemplateMismatch)
}

func (suite *LicenseTokenTestSuite) TestSearchLicenseTokens() {
	_, err := suite.mint(bob, suite.licensor, suite.termsID, 3, bob)
	suite.Require().NoError(err)
	_, err = suite.mint(carol, suite.licensor, suite.termsID, 1, carol)
	suite.Require().NoError(err)

	owner := bob
	tokens, total, err := suite.protocol.LicenseTokens.SearchLicenseTokens(suite.ctx, LicenseTokenSearchParams{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 2, Sort: "token_id", Order: "asc"},
		Owner:            &owner,
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(3), total)
	if assert.Len(suite.T(), tokens, 2) {
		assert.Equal(suite.T(), uint64(1), tokens[0].TokenID)
		assert.Equal(suite.T(), uint64(2), tokens[1].TokenID)
	}

	licensor := suite.licensor
	_, total, err = suite.protocol.LicenseTokens.SearchLicenseTokens(suite.ctx, LicenseTokenSearchParams{LicensorIPID: &licensor})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(4), total)
}

func TestLicenseTokenTestSuite(t *testing.T) {
	suite.Run(t, new(LicenseTokenTestSuite))
}
