package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/eudr-packhouse/parcel-ingester/interface/database/pg"
	"github.com/eudr-packhouse/parcel-ingester/interface/messaging"
	"github.com/eudr-packhouse/parcel-ingester/interface/messaging/pubsub"
	"github.com/eudr-packhouse/parcel-ingester/parcel"
	"github.com/eudr-packhouse/parcel-ingester/pipeline"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type storageConfig struct {
	URI           string
	S3Endpoint    string
	S3Region      string
	S3AccessKeyID string
	S3SecretKey   string
}

type config struct {
	AppPort      string
	DbConnection string
	WorkingDir   string
	Storage      storageConfig

	PsProject     string
	PsEventsTopic string

	TargetSRID      int
	BufferDegrees   float64
	AttributePolicy pipeline.AttributePolicy
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func newAppConfig() (*config, error) {
	// .env.local is optional: the environment provides the defaults of the flags
	_ = godotenv.Load(".env.local")

	config := config{}
	flag.StringVar(&config.AppPort, "port", envOr("PORT", "8080"), "ingester port to use")
	flag.StringVar(&config.DbConnection, "dbConnection", envOr("DB_CONNECTION", ""), "database connection")
	flag.StringVar(&config.WorkingDir, "workdir", envOr("WORKDIR", os.TempDir()), "working directory to store the uploads being normalized")

	// Storage
	flag.StringVar(&config.Storage.URI, "storage-uri", envOr("STORAGE_URI", ""), "storage uri of the parcel files (currently supported: local, gs, s3)")
	flag.StringVar(&config.Storage.S3Endpoint, "s3-endpoint", envOr("S3_ENDPOINT", ""), "s3 endpoint (optional, for s3-compatible storages)")
	flag.StringVar(&config.Storage.S3Region, "s3-region", envOr("S3_REGION", ""), "s3 region (optional)")
	flag.StringVar(&config.Storage.S3AccessKeyID, "s3-access-key-id", envOr("S3_ACCESS_KEY_ID", ""), "s3 access key id (optional, default credentials chain otherwise)")
	flag.StringVar(&config.Storage.S3SecretKey, "s3-secret-access-key", envOr("S3_SECRET_ACCESS_KEY", ""), "s3 secret access key")

	// Messaging
	flag.StringVar(&config.PsProject, "ps-project", envOr("PS_PROJECT", ""), "pubsub project (gcp only/not required in local usage)")
	flag.StringVar(&config.PsEventsTopic, "ps-events-topic", envOr("PS_EVENTS_TOPIC", ""), "pubsub topic of the geometry events (optional)")

	// Normalization
	targetSRID, err := strconv.Atoi(envOr("TARGET_SRID", "3857"))
	if err != nil {
		return nil, fmt.Errorf("TARGET_SRID: %w", err)
	}
	flag.IntVar(&config.TargetSRID, "target-srid", targetSRID, "srid of the normalized geometries")
	flag.Float64Var(&config.BufferDegrees, "buffer-degrees", pipeline.DefaultBufferDegrees, "distance of the buffer around the geometry (degrees)")
	attributePolicy := flag.String("attribute-policy", envOr("ATTRIBUTE_POLICY", pipeline.KeepFirst.String()), "properties of the collapsed feature ("+fmt.Sprint(pipeline.AttributePolicyStrings())+")")
	flag.Parse()

	if config.AppPort == "" {
		return nil, fmt.Errorf("failed to initialize port application flag")
	}
	if config.DbConnection == "" {
		return nil, fmt.Errorf("missing dbConnection config flag")
	}
	if config.WorkingDir == "" {
		return nil, fmt.Errorf("missing workdir config flag")
	}
	if config.Storage.URI == "" {
		return nil, fmt.Errorf("wrong storage-uri config flag")
	}
	if config.PsEventsTopic != "" && config.PsProject == "" {
		return nil, fmt.Errorf("missing ps-project config flag")
	}
	if config.AttributePolicy, err = pipeline.AttributePolicyString(*attributePolicy); err != nil {
		return nil, fmt.Errorf("attribute-policy: %w", err)
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	// Connection to database
	db, err := pg.New(ctx, config.DbConnection)
	if err != nil {
		return fmt.Errorf("pg.New: %w", err)
	}
	if err := db.CheckTargetSRID(ctx, config.TargetSRID); err != nil {
		return fmt.Errorf("target-srid: %w", err)
	}

	// Storage of the parcel files
	var storageOpts []service.StorageOption
	if config.Storage.S3Endpoint != "" {
		storageOpts = append(storageOpts, service.WithS3Endpoint(config.Storage.S3Endpoint))
	}
	if config.Storage.S3Region != "" {
		storageOpts = append(storageOpts, service.WithS3Region(config.Storage.S3Region))
	}
	if config.Storage.S3AccessKeyID != "" {
		storageOpts = append(storageOpts, service.WithS3Credentials(config.Storage.S3AccessKeyID, config.Storage.S3SecretKey))
	}
	storage, err := service.NewStorageStrategy(ctx, config.Storage.URI, storageOpts...)
	if err != nil {
		return fmt.Errorf("NewStorageStrategy: %w", err)
	}

	// Messaging service
	var events messaging.Publisher
	var logMessaging string
	if config.PsEventsTopic != "" {
		logMessaging = fmt.Sprintf(" pushing geometry events on %s/%s", config.PsProject, config.PsEventsTopic)
		publisher, err := pubsub.NewPublisher(ctx, config.PsProject, config.PsEventsTopic)
		if err != nil {
			return fmt.Errorf("pubsub.NewPublisher(Events): %w", err)
		}
		defer publisher.Close()
		events = publisher
	} else {
		log.Logger(ctx).Warn("events topic is not configured: geometry events are disabled")
	}

	if err := os.MkdirAll(config.WorkingDir, 0755); err != nil {
		return fmt.Errorf("workdir: %w", err)
	}

	svc := parcel.NewService(db, storage, events, config.WorkingDir, pipeline.Options{
		TargetSRID:      config.TargetSRID,
		BufferDegrees:   config.BufferDegrees,
		AttributePolicy: config.AttributePolicy,
	})

	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(svc.NewHandler()),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Logger(ctx).Debug("ingester starts on :" + config.AppPort + logMessaging)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Logger(ctx).Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Shutdown(sctx)
	})
	return g.Wait()
}
