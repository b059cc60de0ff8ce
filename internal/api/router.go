package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K3mp3/FixMatch/internal/api/handlers"
	"github.com/K3mp3/FixMatch/internal/api/middleware"
	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/services"
	"github.com/K3mp3/FixMatch/internal/validation"
)

// Services holds what the HTTP handlers call into. Mongo and Redis are only
// used by the health check and may be nil.
type Services struct {
	Config         services.IConfigService
	Users          services.IUserService
	Bookings       services.IBookingService
	Requests       services.IRequestService
	Subscriptions  services.ISubscriptionService
	Payments       services.IPaymentService
	Contact        services.IContactService
	Content        services.IContentService
	EmailTemplates services.IEmailTemplateService

	Mongo handlers.MongoPinger
	Redis handlers.RedisPinger
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	if err := validation.Register(); err != nil {
		log.Fatalf("CRITICAL: Failed to register request validators: %v", err)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, svc.Config)

	// Order matters: preflight requests must not consume rate limit tokens.
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.SecurityHeaders())
	r.Use(handlers.ErrorDetail(cfg.IsDevelopment()))
	r.Use(rateLimiter.Limit())

	configHandler := handlers.NewRestConfigHandler(svc.Config, svc.Mongo, svc.Redis)
	userHandler := handlers.NewRestUserHandler(svc.Users)
	bookingHandler := handlers.NewRestBookingHandler(svc.Bookings, svc.Requests)
	requestHandler := handlers.NewRestRequestHandler(svc.Requests)
	repairShopHandler := handlers.NewRestRepairShopHandler(svc.Subscriptions)
	paymentHandler := handlers.NewRestPaymentHandler(svc.Payments, svc.Subscriptions)
	contactHandler := handlers.NewRestContactHandler(svc.Contact)
	adminHandler := handlers.NewRestAdminHandler(svc.Content, svc.EmailTemplates)

	r.GET("/config", configHandler.GetPublicConfig)
	r.GET("/health", configHandler.Health)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	users := r.Group("/users")
	{
		users.POST("/createUser", userHandler.CreateUser)
		users.POST("/createRepairShopUser", userHandler.CreateRepairShopUser)
		users.POST("/verifyUser", userHandler.VerifyUser)
		users.POST("/resendCode", userHandler.ResendCode)
		users.POST("/signin", userHandler.SignIn)
		users.POST("/deleteAccount", userHandler.DeleteAccount)
		users.POST("/cancelDelete", userHandler.CancelDelete)
		users.POST("/retrieveUserData", userHandler.RetrieveUserData)
		users.POST("/retrieveRepairShopData", userHandler.RetrieveRepairShopData)
		users.POST("/checkTrialPeriod", userHandler.CheckTrialPeriod)
	}

	booking := r.Group("/booking")
	{
		booking.POST("/saveDate", bookingHandler.SaveDate)
		booking.POST("/saveAcceptedDate", bookingHandler.SaveAcceptedDate)
		booking.POST("/saveNewDates", bookingHandler.SaveNewDates)
		booking.POST("/saveNewAcceptedDates", bookingHandler.SaveNewAcceptedDates)
		booking.POST("/updateSavedDates", bookingHandler.UpdateSavedDates)
		booking.POST("/fetchBooking", bookingHandler.FetchBooking)
		booking.POST("/fetchBookings", bookingHandler.FetchBookings)
		booking.POST("/fetchAcceptedBookings", bookingHandler.FetchAcceptedBookings)
		booking.POST("/fetchAcceptedBookingsForRepairShop", bookingHandler.FetchAcceptedBookingsForRepairShop)
		booking.POST("/fetchBookingsWithNewDates", bookingHandler.FetchBookingsWithNewDates)
		booking.POST("/fetchRequestData", bookingHandler.FetchRequestData)
		booking.POST("/cancelAcceptedBooking", bookingHandler.CancelAcceptedBooking)
		booking.POST("/cancelBookingForRepairShop", bookingHandler.CancelBookingForRepairShop)
	}

	requests := r.Group("/contactRepairShops")
	{
		requests.POST("/contactRepairShops", requestHandler.CreateRequest)
		requests.POST("/retrieveRequests", requestHandler.RetrieveRequests)
		requests.POST("/answerRequest", requestHandler.AnswerRequest)
		requests.GET("/getPdf/:filename", requestHandler.GetPDF)
		requests.POST("/retrieveUserSentRequests", requestHandler.RetrieveUserSentRequests)
		requests.POST("/deleteJob", requestHandler.DeleteJob)
		requests.POST("/fetchJobResponse", requestHandler.FetchJobResponse)
	}

	shop := r.Group("/repairShop")
	{
		shop.POST("/saveInfoSettings", repairShopHandler.SaveInfoSettings)
		shop.POST("/saveInfoOnboarding", repairShopHandler.SaveInfoOnboarding)
		shop.POST("/unsubscribe", repairShopHandler.Unsubscribe)
	}

	r.POST("/payments/create-intent", paymentHandler.CreateIntent)
	r.POST("/stripe/verifyStripeSub", paymentHandler.VerifyStripeSub)
	r.POST("/contact/contactUs", contactHandler.ContactUs)

	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
	{
		admin.GET("/getRepairShops", adminHandler.GetRepairShops)
		admin.POST("/deleteRepairShop", adminHandler.DeleteRepairShop)
		admin.POST("/saveRepairShop", adminHandler.SaveRepairShop)
		admin.POST("/upload-image", adminHandler.UploadImage)
		admin.POST("/saveContent", adminHandler.SaveContent)
		admin.GET("/fetchContent", adminHandler.FetchContent)
		admin.PUT("/emailTemplates", adminHandler.SaveEmailTemplate)
		admin.DELETE("/emailTemplates/:templateId/:locale", adminHandler.DeleteEmailTemplate)
	}

	return r
}

// SetupServiceRouter configures the internal service engine used for
// operational commands and end-to-end test hooks.
func SetupServiceRouter(store handlers.MockEmailStore, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	serviceHandler := handlers.NewServiceAPIHandler(store, shutdownChan)
	r.POST("/api", serviceHandler.HandleRequest)
	return r
}
