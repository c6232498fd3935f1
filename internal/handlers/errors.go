// internal/handlers/errors.go
package handlers

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/i18n"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// respondError maps a protocol error to a status code by its kind.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch services.KindOf(err) {
	case services.KindValidation:
		if details := utils.GetValidationErrors(err); len(details) > 0 {
			utils.ValidationErrorResponse(c, details)
			return
		}
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyErrorValidation, err.Error()), nil)
	case services.KindState:
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyErrorState, err.Error()))
	case services.KindAuthorization:
		utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyErrorAuthorization, err.Error()))
	case services.KindDenied:
		utils.DeniedResponse(c, i18n.T(lang, i18n.KeyErrorDenied, err.Error()))
	case services.KindNotFound:
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeyErrorNotFound, err.Error()))
	case services.KindPaused:
		utils.ServiceUnavailableResponse(c, i18n.T(lang, i18n.KeyErrorPaused))
	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyErrorInternal))
	}
}

// bindJSON decodes the body and answers 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		lang := utils.GetLangFromContext(c)
		if details := utils.GetValidationErrors(err); len(details) > 0 {
			utils.ValidationErrorResponse(c, details)
			return false
		}
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	return true
}

func callerOf(c *gin.Context) (common.Address, bool) {
	caller, ok := utils.GetCallerFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return caller, ok
}

func addressParam(c *gin.Context, name string) (common.Address, bool) {
	return parseAddress(c, name, c.Param(name))
}

// addressQuery parses an optional address query; absent means the zero address.
func addressQuery(c *gin.Context, name string) (common.Address, bool) {
	value := c.Query(name)
	if value == "" {
		return common.Address{}, true
	}
	return parseAddress(c, name, value)
}

func parseAddress(c *gin.Context, name, value string) (common.Address, bool) {
	if !common.IsHexAddress(value) {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyInvalidAddress, name), nil)
		return common.Address{}, false
	}
	return common.HexToAddress(value), true
}

func uint64Param(c *gin.Context, name string) (uint64, bool) {
	return parseUint64(c, name, c.Param(name))
}

func uint64Query(c *gin.Context, name string) (uint64, bool) {
	return parseUint64(c, name, c.DefaultQuery(name, "0"))
}

func parseUint64(c *gin.Context, name, value string) (uint64, bool) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyInvalidNumber, name), nil)
		return 0, false
	}
	return n, true
}
