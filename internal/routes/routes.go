package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/example/exodetect/internal/config"
	"github.com/example/exodetect/internal/handlers"
	"github.com/example/exodetect/internal/middleware"
	"github.com/example/exodetect/internal/models"
	"github.com/example/exodetect/internal/services"
)

// NewApp builds the Fiber application with the shared middleware and
// every route group wired.
func NewApp(db *gorm.DB, cfg *config.Config, rdb *redis.Client) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Exodetect Backend",
		ErrorHandler: errorHandler(cfg),
	})

	app.Use(recover.New())
	app.Use(logger.New())

	Register(app, db, cfg, rdb)
	return app
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, rdb *redis.Client) {
	mailer := services.NewMailer(cfg)
	sms := services.NewSMSService(cfg.SMSGatewayURL, cfg.SMSAccountSID, cfg.SMSAuthToken, cfg.SMSFromNumber)
	otp := services.NewOtpService(db, mailer, sms, rdb)
	predictor := services.NewPredictor(cfg)

	authHandler := handlers.NewAuthHandler(db, cfg, otp)
	profileHandler := handlers.NewProfileHandler(db)
	linkedHandler := handlers.NewLinkedAccountHandler(db, otp)
	accountHandler := handlers.NewAccountHandler(db, otp)
	mlHandler := handlers.NewMLHandler(db, predictor)
	compareHandler := handlers.NewCompareHandler()

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Exodetect API is running",
			"models":  []string{"TOI", "KOI", "K2"},
		})
	})
	app.Get("/health/all", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"success": true,
			"status":  "ok",
		})
	})

	auth := middleware.AuthMiddleware(db, cfg)

	// /user and /other carry the same workflow for their respective roles.
	for _, segment := range []string{"user", "other"} {
		role := models.RoleFromSegment(segment)
		group := app.Group("/" + segment)

		group.Post("/register", authHandler.Register(role))
		group.Post("/verify-otp", authHandler.VerifyOtp)
		group.Post("/complete-registration", authHandler.CompleteRegistration)
		group.Post("/login", authHandler.Login(role))
		group.Post("/forgot-password", authHandler.ForgotPassword)
		group.Post("/reset-password", authHandler.ResetPassword)

		group.Get("/profile", auth, profileHandler.GetProfile)
		group.Put("/profile", auth, profileHandler.UpdateProfile)

		group.Get("/linked-accounts", auth, linkedHandler.List)
		group.Post("/link-account", auth, linkedHandler.Link)
		group.Post("/verify-linked-account", auth, linkedHandler.Verify)
		group.Post("/make-account-primary", auth, linkedHandler.MakePrimary)
		group.Delete("/linked-accounts/:id", auth, linkedHandler.Remove)

		group.Post("/send-otp-for-operation", auth, accountHandler.SendOperationOtp)
		group.Put("/change-password", auth, accountHandler.ChangePassword)
		group.Post("/request-deletion", auth, accountHandler.RequestDeletion)
		group.Delete("/account", auth, accountHandler.DeleteAccount)
	}

	ml := app.Group("/api/ml", auth)
	ml.Post("/predict/toi", mlHandler.Predict("toi"))
	ml.Post("/predict/koi", mlHandler.Predict("koi"))
	ml.Post("/predict/k2", mlHandler.Predict("k2"))
	ml.Post("/process-file/:modelType", mlHandler.ProcessFile)
	ml.Get("/file-status/:jobId", mlHandler.FileStatus)
	ml.Get("/model-info/:modelType", mlHandler.ModelInfo)
	ml.Get("/entries/:modelType", mlHandler.ListEntries)
	ml.Get("/entries/:modelType/export", mlHandler.ExportEntries)
	ml.Put("/entries/:modelType/:entryId", mlHandler.UpdateEntry)
	ml.Delete("/entries/:modelType/:entryId", mlHandler.DeleteEntry)
	ml.Post("/custom-models", mlHandler.CreateCustomModel)
	ml.Get("/custom-models", mlHandler.ListCustomModels)
	ml.Put("/custom-models", mlHandler.UpdateCustomModel)
	ml.Delete("/custom-models", mlHandler.DeleteCustomModel)
	ml.Post("/custom-models/predict", mlHandler.PredictCustom)
	ml.Get("/dashboard", mlHandler.Dashboard)

	app.Post("/api/compare", compareHandler.Compare)
}

// errorHandler renders every error as the JSON envelope the clients
// expect. Internal detail is only exposed in development environments.
func errorHandler(cfg *config.Config) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"success": false,
				"message": fiberErr.Message,
			})
		}

		resp := fiber.Map{
			"success": false,
			"message": "internal server error",
		}
		if cfg.IsDevelopment() {
			resp["error"] = err.Error()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
}
