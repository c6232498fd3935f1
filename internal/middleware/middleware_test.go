package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"golang.org/x/time/rate"

	"github.com/javajoker/imi-licensing/internal/utils"
)

var admin = common.HexToAddress("0x00000000000000000000000000000000000000ad")

type MiddlewareTestSuite struct {
	suite.Suite
}

func (suite *MiddlewareTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("middleware-test-secret")
}

func (suite *MiddlewareTestSuite) serve(router *gin.Engine, header http.Header) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.30.0.1:4000"
	for key, values := range header {
		req.Header[key] = values
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func (suite *MiddlewareTestSuite) TestParseLanguage() {
	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"zh-TW,zh;q=0.9,en;q=0.8", "zh_TW"},
		{"zh-Hant", "zh_TW"},
		{"en-GB;q=0.8", "en"},
		{"fr-FR", "en"},
	}
	for _, tt := range tests {
		assert.Equal(suite.T(), tt.want, parseLanguage(tt.header, "en"), tt.header)
	}
}

func (suite *MiddlewareTestSuite) TestBearerToken() {
	token, ok := bearerToken("Bearer abc.def")
	assert.True(suite.T(), ok)
	assert.Equal(suite.T(), "abc.def", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "bearer abc"} {
		_, ok := bearerToken(header)
		assert.False(suite.T(), ok, header)
	}
}

func (suite *MiddlewareTestSuite) TestAuthRequired() {
	router := gin.New()
	router.GET("/", AuthRequired(), func(c *gin.Context) {
		caller, _ := utils.GetCallerFromContext(c)
		c.String(http.StatusOK, caller.Hex())
	})

	token, err := utils.GenerateJWT(admin, 1)
	suite.Require().NoError(err)
	w := suite.serve(router, bearer(token))
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), admin.Hex(), w.Body.String())

	assert.Equal(suite.T(), http.StatusUnauthorized, suite.serve(router, nil).Code)
	assert.Equal(suite.T(), http.StatusUnauthorized, suite.serve(router, bearer("garbage")).Code)
}

func (suite *MiddlewareTestSuite) TestAdminRequired() {
	router := gin.New()
	router.GET("/", AuthRequired(), AdminRequired(admin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	adminToken, err := utils.GenerateJWT(admin, 1)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), http.StatusNoContent, suite.serve(router, bearer(adminToken)).Code)

	otherToken, err := utils.GenerateJWT(common.HexToAddress("0x0000000000000000000000000000000000000b0b"), 1)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), http.StatusForbidden, suite.serve(router, bearer(otherToken)).Code)

	unset := gin.New()
	unset.GET("/", AuthRequired(), AdminRequired(common.Address{}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	assert.Equal(suite.T(), http.StatusForbidden, suite.serve(unset, bearer(adminToken)).Code)
}

func (suite *MiddlewareTestSuite) TestOptionalAuth() {
	router := gin.New()
	router.GET("/", OptionalAuth(), func(c *gin.Context) {
		_, ok := utils.GetCallerFromContext(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	token, err := utils.GenerateJWT(admin, 1)
	suite.Require().NoError(err)
	assert.JSONEq(suite.T(), `{"authenticated":true}`, suite.serve(router, bearer(token)).Body.String())
	assert.JSONEq(suite.T(), `{"authenticated":false}`, suite.serve(router, bearer("garbage")).Body.String())
	assert.JSONEq(suite.T(), `{"authenticated":false}`, suite.serve(router, nil).Body.String())
}

func (suite *MiddlewareTestSuite) TestRateLimiter() {
	limiter := NewRateLimiter(rate.Every(time.Hour), 2)
	router := gin.New()
	router.GET("/", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(suite.T(), http.StatusNoContent, suite.serve(router, nil).Code)
	assert.Equal(suite.T(), http.StatusNoContent, suite.serve(router, nil).Code)
	assert.Equal(suite.T(), http.StatusTooManyRequests, suite.serve(router, nil).Code)

	limiter.evict(time.Now().Add(time.Hour), time.Minute)
	assert.Equal(suite.T(), http.StatusNoContent, suite.serve(router, nil).Code)
}

func (suite *MiddlewareTestSuite) TestRateLimiterKeysByCaller() {
	limiter := NewRateLimiter(rate.Every(time.Hour), 1)
	router := gin.New()
	router.GET("/", AuthRequired(), limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	first, err := utils.GenerateJWT(admin, 1)
	suite.Require().NoError(err)
	second, err := utils.GenerateJWT(common.HexToAddress("0x0000000000000000000000000000000000000b0b"), 1)
	suite.Require().NoError(err)

	assert.Equal(suite.T(), http.StatusNoContent, suite.serve(router, bearer(first)).Code)
	assert.Equal(suite.T(), http.StatusTooManyRequests, suite.serve(router, bearer(first)).Code)
	assert.Equal(suite.T(), http.StatusNoContent, suite.serve(router, bearer(second)).Code)
}

func (suite *MiddlewareTestSuite) TestExtractResource() {
	ipID := "0x00000000000000000000000000000000000000aa"
	assert.Equal(suite.T(), "ip-assets", extractResourceType("/v1/ip-assets/"+ipID))
	assert.Equal(suite.T(), "health", extractResourceType("/health"))
	assert.Equal(suite.T(), common.HexToAddress(ipID).Hex(), extractResourceID("/v1/royalty/vaults/"+ipID+"/snapshots"))
	assert.Empty(suite.T(), extractResourceID("/v1/license-tokens/12"))
}

func TestMiddlewareTestSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareTestSuite))
}
