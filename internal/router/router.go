// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/handlers"
	"github.com/javajoker/imi-licensing/internal/metrics"
	"github.com/javajoker/imi-licensing/internal/middleware"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

const version = "1.0.0"

func Initialize(p *services.Protocol, cfg *config.Config) *gin.Engine {
	// Initialize handlers
	adminHandler := handlers.NewAdminHandler(p)
	authHandler := handlers.NewAuthHandler(p.Modules)
	ipAssetHandler := handlers.NewIPAssetHandler(p.IPs, p.Registry, p.Disputes)
	licenseHandler := handlers.NewLicenseHandler(p.PILTemplate, p.Registry, p.Licensing)
	licenseTokenHandler := handlers.NewLicenseTokenHandler(p.LicenseTokens)
	paymentHandler := handlers.NewPaymentHandler(p.Royalty, p.Vaults)
	groupHandler := handlers.NewGroupHandler(p.Groups)
	tokenHandler := handlers.NewTokenHandler(p.Tokens)
	eventHandler := handlers.NewEventHandler(p.Events)
	verificationHandler := handlers.NewVerificationHandler(p.Modules)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(middleware.GeneralRateLimit())

	r.GET("/health", func(c *gin.Context) {
		status := "healthy"
		if p.Paused() {
			status = "paused"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  status,
			"version": version,
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.NewHandler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/protocol", adminHandler.GetProtocolStatus)
		v1.GET("/modules", adminHandler.GetModules)
		v1.GET("/events", eventHandler.GetEvents)
		v1.GET("/auth/me", middleware.AuthRequired(), authHandler.GetCaller)

		// IP asset routes
		ipAssets := v1.Group("/ip-assets")
		{
			ipAssets.GET("/:id", ipAssetHandler.GetIPAsset)
			ipAssets.GET("/:id/permissions", ipAssetHandler.HasPermission)
			ipAssets.GET("/:id/licenses", ipAssetHandler.GetAttachedLicenses)
			ipAssets.GET("/:id/licensing-config", ipAssetHandler.GetLicensingConfig)
			ipAssets.GET("/:id/parents", ipAssetHandler.GetParents)
			ipAssets.GET("/:id/derivatives", ipAssetHandler.GetDerivatives)
			ipAssets.GET("/:id/ancestors", ipAssetHandler.GetAncestors)
			ipAssets.GET("/:id/disputes", ipAssetHandler.GetDisputes)

			protected := ipAssets.Group("")
			protected.Use(middleware.AuthRequired(), middleware.WriteRateLimit())
			{
				protected.POST("", ipAssetHandler.RegisterIPAsset)
				protected.PUT("/:id/permissions", ipAssetHandler.SetPermission)
			}
		}

		// License terms routes
		terms := v1.Group("/license-terms")
		{
			terms.GET("", licenseHandler.GetLicenseTermsSummary)
			terms.GET("/:id", licenseHandler.GetLicenseTerms)
			terms.POST("/lookup", licenseHandler.LookupLicenseTerms)
			terms.GET("/approvals", licenseHandler.IsDerivativeApproved)

			protected := terms.Group("")
			protected.Use(middleware.AuthRequired(), middleware.WriteRateLimit())
			{
				protected.POST("", licenseHandler.RegisterLicenseTerms)
				protected.PUT("/approvals", licenseHandler.SetApproval)
			}
		}

		// Licensing routes
		licensing := v1.Group("/licensing")
		{
			licensing.POST("/predict-fee", middleware.OptionalAuth(), licenseHandler.PredictMintingLicenseFee)

			protected := licensing.Group("")
			protected.Use(middleware.AuthRequired(), middleware.WriteRateLimit())
			{
				protected.POST("/attach", licenseHandler.AttachLicenseTerms)
				protected.POST("/mint", licenseHandler.MintLicenseTokens)
				protected.POST("/derivatives", licenseHandler.RegisterDerivative)
				protected.POST("/derivatives/with-tokens", licenseHandler.RegisterDerivativeWithLicenseTokens)
				protected.PUT("/config", licenseHandler.SetLicensingConfig)
			}
		}

		// License token routes
		licenseTokens := v1.Group("/license-tokens")
		{
			licenseTokens.GET("", licenseTokenHandler.GetLicenseTokens)
			licenseTokens.GET("/:id", licenseTokenHandler.GetLicenseToken)
			licenseTokens.POST("/:id/transfer", middleware.AuthRequired(), middleware.WriteRateLimit(), licenseTokenHandler.TransferLicenseToken)
		}

		// Royalty routes
		royalty := v1.Group("/royalty")
		{
			royalty.GET("/vaults/:id", paymentHandler.GetVault)
			royalty.GET("/vaults/:id/snapshots", paymentHandler.GetSnapshots)
			royalty.GET("/vaults/:id/snapshots/:snapshot_id", paymentHandler.GetSnapshotPools)
			royalty.GET("/vaults/:id/claimable", paymentHandler.GetClaimableRevenue)
			royalty.GET("/vaults/:id/shares", paymentHandler.GetShareHolders)
			royalty.GET("/vaults/:id/shares/:holder", paymentHandler.GetShareBalance)

			protected := royalty.Group("")
			protected.Use(middleware.AuthRequired(), middleware.WriteRateLimit())
			{
				protected.POST("/pay", paymentHandler.PayRoyaltyOnBehalf)
				protected.POST("/external-policies", paymentHandler.RegisterExternalRoyaltyPolicy)
				protected.POST("/vaults/:id/snapshots", paymentHandler.Snapshot)
				protected.POST("/vaults/:id/claims", paymentHandler.ClaimRevenue)
				protected.POST("/vaults/:id/collect", paymentHandler.CollectRoyaltyTokens)
				protected.POST("/vaults/:id/shares/transfer", paymentHandler.TransferShares)
			}
		}

		// Group routes
		groups := v1.Group("/groups")
		{
			groups.GET("/:id", groupHandler.GetGroup)
			groups.GET("/:id/rewards", groupHandler.GetPendingReward)

			protected := groups.Group("")
			protected.Use(middleware.AuthRequired(), middleware.WriteRateLimit())
			{
				protected.POST("", groupHandler.RegisterGroup)
				protected.POST("/:id/members", groupHandler.AddGroupMembers)
				protected.DELETE("/:id/members", groupHandler.RemoveGroupMembers)
				protected.POST("/:id/collect", groupHandler.CollectGroupRoyalties)
				protected.POST("/:id/claim", groupHandler.ClaimGroupReward)
			}
		}

		// Currency token routes
		tokens := v1.Group("/tokens")
		{
			tokens.GET("/:token/balances/:account", tokenHandler.GetBalance)
			tokens.POST("/:token/transfer", middleware.AuthRequired(), middleware.WriteRateLimit(), tokenHandler.Transfer)
		}

		// Verification routes (public, read-only)
		verify := v1.Group("/verify")
		{
			verify.POST("/mint", verificationHandler.VerifyMint)
			verify.POST("/derivative", verificationHandler.VerifyDerivative)
			verify.POST("/compatible", verificationHandler.VerifyCompatible)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(p.Modules.Admin()))
		{
			admin.POST("/pause", adminHandler.Pause)
			admin.POST("/unpause", adminHandler.Unpause)

			admin.POST("/modules", adminHandler.RegisterModule)
			admin.DELETE("/modules/:kind/:address", adminHandler.RemoveModule)
			admin.POST("/license-templates", adminHandler.RegisterLicenseTemplate)
			admin.PUT("/default-terms", adminHandler.SetDefaultLicenseTerms)
			admin.PUT("/royalty-policies", adminHandler.WhitelistRoyaltyPolicy)
			admin.PUT("/royalty-tokens", adminHandler.WhitelistRoyaltyToken)

			admin.POST("/ip-assets/:id/disputes", adminHandler.TagIP)
			admin.PUT("/disputes/:dispute_id/resolve", adminHandler.ResolveDispute)

			admin.POST("/tokens/mint", adminHandler.MintCurrency)
		}
	}

	return r
}
