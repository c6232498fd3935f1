package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

var account = common.HexToAddress("0x000000000000000000000000000000000000a11c")

type UtilsTestSuite struct {
	suite.Suite
}

func (suite *UtilsTestSuite) SetupTest() {
	SetJWTSecret("utils-test-secret")
}

func (suite *UtilsTestSuite) TestJWTRoundTrip() {
	token, err := GenerateJWT(account, 1)
	suite.Require().NoError(err)

	claims, err := ValidateJWT(token)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), account, claims.Caller())
	assert.Equal(suite.T(), jwtIssuer, claims.Issuer)
	assert.NotEmpty(suite.T(), claims.ID)
}

func (suite *UtilsTestSuite) TestJWTRejects() {
	expired, err := GenerateJWT(account, -1)
	suite.Require().NoError(err)
	_, err = ValidateJWT(expired)
	assert.Error(suite.T(), err)

	SetJWTSecret("other-secret")
	foreign, err := GenerateJWT(account, 1)
	suite.Require().NoError(err)
	SetJWTSecret("utils-test-secret")
	_, err = ValidateJWT(foreign)
	assert.Error(suite.T(), err)

	claims := JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	notAnAddress, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("utils-test-secret"))
	suite.Require().NoError(err)
	_, err = ValidateJWT(notAnAddress)
	assert.Error(suite.T(), err)
}

func (suite *UtilsTestSuite) TestValidateStruct() {
	type request struct {
		Signer string `validate:"required,eth_addr,nonzero_addr"`
	}

	assert.NoError(suite.T(), ValidateStruct(request{Signer: account.Hex()}))

	tests := []struct {
		signer string
		tag    string
	}{
		{"", "required"},
		{"0x1234", "eth_addr"},
		{common.Address{}.Hex(), "nonzero_addr"},
	}
	for _, tt := range tests {
		errs := GetValidationErrors(ValidateStruct(request{Signer: tt.signer}))
		if assert.Len(suite.T(), errs, 1, tt.signer) {
			assert.Equal(suite.T(), "signer", errs[0].Field)
			assert.Equal(suite.T(), tt.tag, errs[0].Tag)
		}
	}
}

func (suite *UtilsTestSuite) TestPaginationParams() {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest(http.MethodGet, "/?page=0&limit=500&order=sideways&sort=token_id", nil)

	params := GetPaginationParams(c)
	assert.Equal(suite.T(), PaginationParams{Page: 1, Limit: 20, Sort: "token_id", Order: "desc"}, params)

	result := CreatePaginationResult([]int{1, 2}, 41, params)
	assert.Equal(suite.T(), 3, result.TotalPages)
}

func TestUtilsTestSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}
