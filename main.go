package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/K3mp3/FixMatch/internal/api"
	"github.com/K3mp3/FixMatch/internal/billing"
	"github.com/K3mp3/FixMatch/internal/cache"
	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/email"
	"github.com/K3mp3/FixMatch/internal/events"
	"github.com/K3mp3/FixMatch/internal/scheduler"
	"github.com/K3mp3/FixMatch/internal/services"
	"github.com/K3mp3/FixMatch/internal/storage"
	"github.com/K3mp3/FixMatch/internal/tasks"
	"github.com/K3mp3/FixMatch/internal/worker"
)

var runMode = flag.String("m", "", "Run mode: 'api', 'bg' (background tasks), 'img' (image processing), 'sched' (cron scheduler), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	runAPI, runBg, runImg, runSched, err := roles(cfg.RunMode)
	if err != nil {
		log.Fatal(err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()
	if err := db.EnsureIndexes(startCtx, mongoDb); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	redisClient, err := cache.ConnectRedis(startCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Lives for the whole process: the config service keeps a Pub/Sub listener on it.
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()
	configSvc := services.NewConfigService(appCtx, mongoDb, cfg, redisClient)

	var billingProvider billing.Provider
	if cfg.StripeSecretKey != "" && !cfg.MockServices {
		billingProvider = billing.NewStripeProvider(cfg.StripeSecretKey)
	} else {
		log.Println("Stripe not configured or MOCK_SERVICES enabled: using fake billing provider.")
		billingProvider = billing.NewFakeProvider()
	}

	publisher, err := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Printf("Error closing event publisher: %v", err)
		}
	}()

	var objects storage.IObjectStorage
	if cfg.AwsS3Bucket != "" && !cfg.MockServices {
		objects, err = storage.NewS3Storage(startCtx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
	} else {
		log.Println("AWS_S3_BUCKET not set or MOCK_SERVICES enabled: using in-memory object storage.")
		objects = storage.NewMemoryStorage(cfg.ImageBaseS3URL)
	}

	txm := db.NewNoopTransactionManager()
	if cfg.MongoTransactions {
		txm = db.NewTransactionManager(mongoClient)
	}

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	// Services
	notifier := services.NewNotificationService(mongoDb, taskClient, cfg.DefaultLocale)
	identities := services.NewIdentityService(mongoDb)
	templateService := services.NewEmailTemplateService(mongoDb, cfg.DefaultLocale)
	userService := services.NewUserService(mongoDb, cfg, configSvc, identities, notifier, billingProvider)
	bookingService := services.NewBookingService(mongoDb, cfg, configSvc, notifier, billingProvider, publisher)
	requestService := services.NewRequestService(mongoDb, notifier, objects)
	subscriptionService := services.NewSubscriptionService(mongoDb, billingProvider)
	paymentService := services.NewPaymentService(mongoDb, billingProvider)
	contactService := services.NewContactService(notifier, cfg.ContactAddress)
	contentService := services.NewContentService(mongoDb, cfg, objects, taskClient)
	lifecycleService := services.NewLifecycleService(mongoDb, cfg, configSvc, identities, notifier, billingProvider, objects, txm, publisher)

	if n, err := bookingService.BackfillStatus(startCtx); err != nil {
		log.Printf("WARNING: Booking status backfill failed: %v", err)
	} else if n > 0 {
		log.Printf("Backfilled status on %d bookings.", n)
	}

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	// Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(redisClient, shutdownChan),
	}
	serve(&wg, "Service API", serviceSrv)

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	var mainApiSrv *http.Server
	if runAPI {
		mainApiSrv = &http.Server{
			Addr: ":" + cfg.ApiPort,
			Handler: api.SetupRouter(cfg, api.Services{
				Config:         configSvc,
				Users:          userService,
				Bookings:       bookingService,
				Requests:       requestService,
				Subscriptions:  subscriptionService,
				Payments:       paymentService,
				Contact:        contactService,
				Content:        contentService,
				EmailTemplates: templateService,
				Mongo:          mongoClient,
				Redis:          redisClient,
			}),
		}
		serve(&wg, "Main API", mainApiSrv)
	}

	var taskSrv *asynq.Server
	if runBg || runImg {
		processor := worker.NewTaskProcessor(cfg, emailSender(cfg, redisClient), templateService, objects, lifecycleService)
		var mux *asynq.ServeMux
		taskSrv, mux = worker.SetupServer(redisClient, processor, runImg, runBg)
		if taskSrv != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fmt.Println("Task server starting...")
				if err := taskSrv.Run(mux); err != nil {
					log.Fatalf("Task server error: %v", err)
				}
				fmt.Println("Task server stopped.")
			}()
		}
	}

	var sched *scheduler.Scheduler
	if runSched {
		sched = scheduler.NewScheduler(cfg, taskClient)
		if err := sched.Register(); err != nil {
			log.Fatalf("Failed to register scheduled jobs: %v", err)
		}
		sched.Start()
		fmt.Println("Scheduler started.")
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if sched != nil {
		fmt.Println("Stopping scheduler...")
		<-sched.Stop().Done()
	}
	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}
	if taskSrv != nil {
		fmt.Println("Shutting down Task server...")
		taskSrv.Shutdown()
	}
	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}
	cancelApp()

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()
	fmt.Println("Server gracefully stopped")
}

// roles maps a run mode onto the components this process runs.
func roles(mode string) (apiRole, bg, img, sched bool, err error) {
	switch mode {
	case "api":
		return true, false, false, false, nil
	case "bg":
		return false, true, false, false, nil
	case "img":
		return false, false, true, false, nil
	case "sched":
		return false, false, false, true, nil
	case "all":
		return true, true, true, true, nil
	default:
		return false, false, false, false, fmt.Errorf("invalid run mode: %q", mode)
	}
}

// emailSender builds the delivery chain: Redis capture in mock mode, SMTP (or
// logging without a host) otherwise, plus an optional file copy.
func emailSender(cfg *config.Config, rdb *redis.Client) email.Sender {
	var primary email.Sender
	if cfg.MockServices {
		log.Println("MOCK_SERVICES enabled: Using Redis email sender.")
		primary = email.NewRedisSender(rdb, cfg.SmtpFromAddress)
	} else {
		primary = email.NewSMTPSender(cfg)
	}
	composite := email.NewCompositeEmailSender(primary)

	if cfg.LogEmails != "" {
		fileSender, err := email.NewFileEmailSender(cfg.LogEmails)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file email sender (LOG_EMAILS='%s'): %v. Proceeding without file logging.", cfg.LogEmails, err)
		} else {
			composite.AddSender(fileSender)
			log.Printf("LOG_EMAILS set to '%s', file email logger added.", cfg.LogEmails)
		}
	}
	return composite
}

func serve(wg *sync.WaitGroup, name string, srv *http.Server) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("%s listening on %s\n", name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("%s ListenAndServe error: %v", name, err)
		}
		fmt.Printf("%s server stopped.\n", name)
	}()
}
