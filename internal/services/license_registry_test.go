package services

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LicenseRegistryTestSuite struct {
	protocolFixture
	roots []common.Address
	child common.Address
	twin  common.Address
}

// SetupTest links child to both roots and twin to the second root, all under
// the default terms.
func (suite *LicenseRegistryTestSuite) SetupTest() {
	suite.protocolFixture.SetupTest()

	suite.roots = []common.Address{suite.registerIP(alice), suite.registerIP(bob)}
	suite.child = suite.registerIP(carol)
	suite.twin = suite.registerIP(carol)

	defaults := suite.defaultTermsID()
	suite.Require().NoError(suite.registerDerivative(carol, suite.child, suite.roots, []uint64{defaults, defaults}))
	suite.Require().NoError(suite.registerDerivative(carol, suite.twin, suite.roots[1:], []uint64{defaults}))
}

func (suite *LicenseRegistryTestSuite) TestParentsByPosition() {
	registry := suite.protocol.Registry

	count, err := registry.GetParentIPCount(suite.ctx, suite.child)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(2), count)

	for i, root := range suite.roots {
		parent, err := registry.GetParentIP(suite.ctx, suite.child, i)
		assert.NoError(suite.T(), err)
		assert.Equal(suite.T(), root, parent)
	}
	_, err = registry.GetParentIP(suite.ctx, suite.child, 2)
	assert.ErrorIs(suite.T(), err, ErrIndexOutOfBounds)

	count, err = registry.GetParentIPCount(suite.ctx, suite.roots[0])
	assert.NoError(suite.T(), err)
	assert.Zero(suite.T(), count)
}

func (suite *LicenseRegistryTestSuite) TestDerivativesByPosition() {
	registry := suite.protocol.Registry
	shared := suite.roots[1]

	count, err := registry.GetDerivativeIPCount(suite.ctx, shared)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(2), count)

	first, err := registry.GetDerivativeIP(suite.ctx, shared, 0)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.child, first)

	second, err := registry.GetDerivativeIP(suite.ctx, shared, 1)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.twin, second)

	_, err = registry.GetDerivativeIP(suite.ctx, suite.roots[0], 1)
	assert.ErrorIs(suite.T(), err, ErrIndexOutOfBounds)

	hasDerivatives, err := registry.HasDerivativeIPs(suite.ctx, suite.child)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), hasDerivatives)
}

func (suite *LicenseRegistryTestSuite) TestGraphMembership() {
	registry := suite.protocol.Registry

	isParent, err := registry.IsParentIP(suite.ctx, suite.roots[0], suite.child)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), isParent)

	isParent, err = registry.IsParentIP(suite.ctx, suite.roots[0], suite.twin)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), isParent)

	license, err := registry.GetParentLicenseTerms(suite.ctx, suite.twin, suite.roots[1])
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), AttachedLicense{Template: suite.template(), TermsID: suite.defaultTermsID()}, license)

	_, err = registry.GetParentLicenseTerms(suite.ctx, suite.twin, suite.roots[0])
	assert.ErrorIs(suite.T(), err, ErrLicenseTermsNotFound)

	isDerivative, err := registry.IsDerivativeIP(suite.ctx, suite.twin)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), isDerivative)

	isDerivative, err = registry.IsDerivativeIP(suite.ctx, suite.roots[1])
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), isDerivative)
}

func (suite *LicenseRegistryTestSuite) TestLicenseTemplatePinning() {
	registry := suite.protocol.Registry

	pinned, err := registry.GetLicenseTemplate(suite.ctx, suite.child)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.template(), pinned)

	// Roots only ever relied on the implicit defaults.
	pinned, err = registry.GetLicenseTemplate(suite.ctx, suite.roots[0])
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.Address{}, pinned)
}

func (suite *LicenseRegistryTestSuite) TestSetDefaultLicenseTerms() {
	registry := suite.protocol.Registry
	previous := suite.defaultTermsID()
	termsID := suite.registerTerms(suite.commercialRemix(5*percent, 0))

	assert.ErrorIs(suite.T(), registry.SetDefaultLicenseTerms(suite.ctx, alice, suite.template(), termsID), ErrNotProtocolAdmin)
	assert.ErrorIs(suite.T(), registry.SetDefaultLicenseTerms(suite.ctx, admin, suite.template(), 999), ErrLicenseTermsNotFound)
	assert.Equal(suite.T(), previous, suite.defaultTermsID())

	suite.Require().NoError(registry.SetDefaultLicenseTerms(suite.ctx, admin, suite.template(), termsID))
	assert.Equal(suite.T(), termsID, suite.defaultTermsID())

	ip := suite.registerIP(alice)
	assert.ErrorIs(suite.T(), suite.attach(alice, ip, termsID), ErrLicenseTermsAlreadyAttached)

	attached, err := registry.HasIPAttachedLicenseTerms(suite.ctx, ip, suite.template(), previous)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), attached)
}

func (suite *LicenseRegistryTestSuite) TestRegisterLicenseTemplate() {
	registry := suite.protocol.Registry
	template := common.HexToAddress("0x0000000000000000000000000000000000007e57")

	registered, err := registry.IsRegisteredLicenseTemplate(suite.ctx, suite.template())
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), registered)

	assert.ErrorIs(suite.T(), registry.RegisterLicenseTemplate(suite.ctx, bob, template), ErrNotProtocolAdmin)
	registered, err = registry.IsRegisteredLicenseTemplate(suite.ctx, template)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), registered)

	suite.Require().NoError(registry.RegisterLicenseTemplate(suite.ctx, admin, template))
	registered, err = registry.IsRegisteredLicenseTemplate(suite.ctx, template)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), registered)
}

func TestLicenseRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(LicenseRegistryTestSuite))
}
