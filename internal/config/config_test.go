package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (suite *ConfigTestSuite) TestLoadDefaults() {
	suite.T().Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load()
	suite.Require().NoError(err)
	assert.Equal(suite.T(), "8080", cfg.Server.Port)
	assert.Equal(suite.T(), 16, cfg.Licensing.MaxParents)
	assert.Equal(suite.T(), 14, cfg.Royalty.MaxAncestors)
	assert.Equal(suite.T(), 3600, cfg.Royalty.MinSnapshotInterval)
	assert.True(suite.T(), cfg.Licensing.RegisterDefaultTerms)
	assert.Equal(suite.T(), cfg.Database.SQLitePath, cfg.Database.DSN())
}

func (suite *ConfigTestSuite) TestLoadFromEnvironment() {
	suite.T().Setenv("DB_DRIVER", "postgres")
	suite.T().Setenv("DB_HOST", "db.internal")
	suite.T().Setenv("DB_NAME", "licensing")
	suite.T().Setenv("MAX_PARENTS", "4")
	suite.T().Setenv("REGISTER_DEFAULT_TERMS", "FALSE")
	suite.T().Setenv("WHITELISTED_TOKENS", " 0x000000000000000000000000000000000000c0c0 ,,0x000000000000000000000000000000000000d0d0")

	cfg, err := Load()
	suite.Require().NoError(err)
	assert.Equal(suite.T(), 4, cfg.Licensing.MaxParents)
	assert.False(suite.T(), cfg.Licensing.RegisterDefaultTerms)
	assert.Equal(suite.T(), []string{
		"0x000000000000000000000000000000000000c0c0",
		"0x000000000000000000000000000000000000d0d0",
	}, cfg.Royalty.WhitelistedTokens)
	assert.Contains(suite.T(), cfg.Database.DSN(), "host=db.internal")
	assert.Contains(suite.T(), cfg.Database.DSN(), "dbname=licensing")
}

func (suite *ConfigTestSuite) TestValidate() {
	tests := []struct {
		name   string
		key    string
		value  string
		errMsg string
	}{
		{"driver", "DB_DRIVER", "mysql", "unsupported database driver"},
		{"admin", "PROTOCOL_ADMIN_ADDRESS", "admin", "PROTOCOL_ADMIN_ADDRESS"},
		{"token", "WHITELISTED_TOKENS", "usd", "WHITELISTED_TOKENS"},
		{"limits", "MAX_ANCESTORS", "0", "licensing limits must be positive"},
		{"interval", "MIN_SNAPSHOT_INTERVAL", "-1", "MIN_SNAPSHOT_INTERVAL"},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.T().Setenv("DB_DRIVER", "sqlite")
			suite.T().Setenv(tt.key, tt.value)
			_, err := Load()
			if assert.Error(suite.T(), err) {
				assert.Contains(suite.T(), err.Error(), tt.errMsg)
			}
		})
	}
}

func (suite *ConfigTestSuite) TestProductionRequiresSecrets() {
	suite.T().Setenv("ENVIRONMENT", "production")
	suite.T().Setenv("DB_DRIVER", "sqlite")

	_, err := Load()
	assert.ErrorContains(suite.T(), err, "JWT secret")

	suite.T().Setenv("JWT_SECRET", "rotated")
	suite.T().Setenv("DB_DRIVER", "postgres")
	_, err = Load()
	assert.ErrorContains(suite.T(), err, "database password")
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
