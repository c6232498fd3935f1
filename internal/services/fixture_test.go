package services

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
)

var (
	admin       = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice       = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol       = common.HexToAddress("0x00000000000000000000000000000000000ca401")
	currency    = common.HexToAddress("0x000000000000000000000000000000000000c0c0")
	nftContract = common.HexToAddress("0x00000000000000000000000000000000000000f7")
)

// percent is 1% in royalty share units.
const percent = 1_000_000

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
			LogLevel:   "silent",
		},
		JWT: config.JWTConfig{
			SecretKey:      "test-secret",
			AccessTokenTTL: 1,
		},
		Licensing: config.LicensingConfig{
			AdminAddress:         admin.Hex(),
			PILTemplateAddress:   "0x0000000000000000000000000000000000001001",
			RegisterDefaultTerms: true,
			MaxParents:           16,
			MaxGroupSize:         1000,
			EvenSplitPoolAddress: "0x0000000000000000000000000000000000001003",
		},
		Royalty: config.RoyaltyConfig{
			LAPPolicyAddress:    "0x0000000000000000000000000000000000001002",
			MinSnapshotInterval: 3600,
			MaxAncestors:        14,
			WhitelistedTokens:   []string{currency.Hex()},
		},
		I18n: config.I18nConfig{DefaultLocale: "en"},
	}
}

func openTestDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db); err != nil {
		database.Close(db)
		return nil, err
	}
	return db, nil
}

// protocolFixture gives every test a freshly bootstrapped protocol over its own
// in-memory ledger and a clock the test controls.
type protocolFixture struct {
	suite.Suite
	ctx      context.Context
	cfg      *config.Config
	db       *gorm.DB
	protocol *Protocol
	now      time.Time
	tokenID  uint64
}

func (suite *protocolFixture) SetupTest() {
	suite.ctx = context.Background()
	suite.cfg = testConfig()
	suite.now = time.Unix(1_700_000_000, 0)
	suite.tokenID = 0

	db, err := openTestDB(suite.cfg)
	suite.Require().NoError(err)
	suite.db = db

	suite.protocol = NewProtocol(db, suite.cfg, suite.clock)
	suite.Require().NoError(suite.protocol.Bootstrap(suite.ctx))
}

func (suite *protocolFixture) TearDownTest() {
	database.Close(suite.db)
}

func (suite *protocolFixture) clock() time.Time {
	return suite.now
}

func (suite *protocolFixture) advance(d time.Duration) {
	suite.now = suite.now.Add(d)
}

func (suite *protocolFixture) unixNow() uint64 {
	return uint64(suite.now.Unix())
}

func (suite *protocolFixture) template() common.Address {
	return suite.protocol.PILTemplate.Address()
}

func (suite *protocolFixture) lap() common.Address {
	return suite.protocol.LAPPolicy.Address()
}

func (suite *protocolFixture) defaultTermsID() uint64 {
	defaults, err := suite.protocol.Registry.GetDefaultLicenseTerms(suite.ctx)
	suite.Require().NoError(err)
	return defaults.TermsID
}

// registerIP wraps a fresh NFT of the shared test collection.
func (suite *protocolFixture) registerIP(owner common.Address) common.Address {
	suite.tokenID++
	asset, err := suite.protocol.IPs.RegisterIP(suite.ctx, owner, &RegisterIPRequest{
		ChainID:       1,
		TokenContract: nftContract.Hex(),
		TokenID:       suite.tokenID,
	})
	suite.Require().NoError(err)
	return common.HexToAddress(asset.IPID)
}

func (suite *protocolFixture) registerTerms(terms PILTerms) uint64 {
	termsID, err := suite.protocol.PILTemplate.RegisterLicenseTerms(suite.ctx, alice, terms)
	suite.Require().NoError(err)
	return termsID
}

// commercialRemix is commercial, reciprocal terms paying through the LAP policy.
func (suite *protocolFixture) commercialRemix(revShare uint32, fee uint64) PILTerms {
	return PILTerms{
		Transferable:          true,
		RoyaltyPolicy:         suite.lap(),
		DefaultMintingFee:     fee,
		CommercialUse:         true,
		CommercialRevShare:    revShare,
		DerivativesAllowed:    true,
		DerivativesReciprocal: true,
		Currency:              currency,
	}
}

func (suite *protocolFixture) attach(caller, ipID common.Address, termsID uint64) error {
	return suite.protocol.Licensing.AttachLicenseTerms(suite.ctx, caller, &AttachLicenseTermsRequest{
		IPID:            ipID,
		LicenseTemplate: suite.template(),
		LicenseTermsID:  termsID,
	})
}

func (suite *protocolFixture) mint(caller, licensorIPID common.Address, termsID, amount uint64, receiver common.Address) (uint64, error) {
	return suite.protocol.Licensing.MintLicenseTokens(suite.ctx, caller, &MintLicenseTokensRequest{
		LicensorIPID:    licensorIPID,
		LicenseTemplate: suite.template(),
		LicenseTermsID:  termsID,
		Amount:          amount,
		Receiver:        receiver,
	})
}

func (suite *protocolFixture) registerDerivative(caller, childIPID common.Address, parentIPIDs []common.Address, termsIDs []uint64) error {
	return suite.protocol.Licensing.RegisterDerivative(suite.ctx, caller, &RegisterDerivativeRequest{
		ChildIPID:       childIPID,
		ParentIPIDs:     parentIPIDs,
		LicenseTermsIDs: termsIDs,
		LicenseTemplate: suite.template(),
	})
}

func (suite *protocolFixture) fund(account common.Address, amount uint64) {
	suite.Require().NoError(suite.protocol.Tokens.Mint(suite.ctx, admin, currency, account, amount))
}

func (suite *protocolFixture) balance(account common.Address) uint64 {
	balance, err := suite.protocol.Tokens.BalanceOf(suite.ctx, currency, account)
	suite.Require().NoError(err)
	return balance
}

func (suite *protocolFixture) countEvents(eventType models.EventType) int64 {
	var count int64
	suite.Require().NoError(suite.db.Model(&models.ProtocolEvent{}).Where("type = ?", eventType).Count(&count).Error)
	return count
}

// allowListChecker admits the licensees it lists and rejects the config "invalid".
type allowListChecker struct {
	allowed map[common.Address]bool
}

func (c *allowListChecker) VerifyLicensee(ctx context.Context, licensee common.Address, data []byte) (bool, error) {
	return c.allowed[licensee], nil
}

func (c *allowListChecker) ValidateConfig(ctx context.Context, data []byte) error {
	if string(data) == "invalid" {
		return errors.New("unsupported checker config")
	}
	return nil
}

// fixedFeeHook charges a flat fee, or denies every operation when err is set.
type fixedFeeHook struct {
	fee   uint64
	err   error
	mints int
}

func (h *fixedFeeHook) BeforeMintLicenseTokens(ctx context.Context, req HookMintRequest) (uint64, error) {
	h.mints++
	return h.fee, h.err
}

func (h *fixedFeeHook) BeforeRegisterDerivative(ctx context.Context, req HookDerivativeRequest) (uint64, error) {
	return h.fee, h.err
}

func (h *fixedFeeHook) CalculateMintingFee(ctx context.Context, req HookMintRequest) (uint64, error) {
	return h.fee, h.err
}

// recordingPolicy is an external royalty policy that only records what it is told.
type recordingPolicy struct {
	minted []common.Address
	linked []common.Address
}

func (p *recordingPolicy) OnLicenseMinting(ctx context.Context, ipID common.Address, royaltyPercent uint32, externalData []byte) error {
	p.minted = append(p.minted, ipID)
	return nil
}

func (p *recordingPolicy) OnLinkToParents(ctx context.Context, ipID common.Address, parentIPIDs []common.Address, licenseRoyaltyPercents []uint32, externalData []byte) error {
	p.linked = append(p.linked, ipID)
	return nil
}
