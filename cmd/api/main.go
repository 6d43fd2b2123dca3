package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"faceattend/internal/attendance"
	"faceattend/internal/blob"
	"faceattend/internal/config"
	"faceattend/internal/faceclient"
	"faceattend/internal/handler"
	"faceattend/internal/logger"
	"faceattend/internal/recognition"
	"faceattend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	l, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer l.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, l); err != nil {
		l.Fatal("server failed", zap.Error(err))
	}
}

// backends holds the wired collaborators and what must be released on exit.
type backends struct {
	blobs   blob.Store
	oracle  recognition.Oracle
	records attendance.RecordStore
	cache   recognition.KeyCache
	checks  map[string]handler.Check
	closers []func() error
}

func (b *backends) close(l *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			l.Warn("close failed", zap.Error(err))
		}
	}
}

func run(cfg config.App, l *zap.Logger) error {
	ctx := context.Background()

	b, err := wire(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer b.close(l)

	roster := recognition.NewRosterLoader(b.blobs, b.cache, l.Named("roster"))
	resolver := recognition.NewResolver(b.oracle, cfg.SimilarityThreshold, l.Named("resolver"))
	svc := attendance.NewService(b.records, b.blobs, roster, resolver, attendance.Options{
		Location:      cfg.Location,
		Retries:       cfg.TransitionRetries,
		MaxImageBytes: cfg.MaxUploadBytes,
		Logger:        l.Named("attendance"),
	})

	r := handler.NewRouter(handler.RouterConfig{
		Attendance:      handler.NewAttendanceHandler(svc, cfg.MaxUploadBytes, l.Named("http")),
		Health:          handler.NewHealthHandler(b.checks),
		Logger:          l,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigin:      cfg.CORSOrigin,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("blob_backend", cfg.BlobBackend),
			zap.String("oracle_backend", cfg.OracleBackend),
			zap.String("record_backend", cfg.RecordBackend),
			zap.Float64("similarity_threshold", resolver.Threshold()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	l.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("server forced shutdown", zap.Error(err))
	}
	l.Info("server exited")
	return nil
}

func wire(ctx context.Context, cfg config.App, l *zap.Logger) (*backends, error) {
	b := &backends{checks: map[string]handler.Check{}}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg == nil {
			c, err := store.LoadAWS(ctx, cfg.AWSRegion)
			if err != nil {
				return aws.Config{}, err
			}
			awsCfg = &c
		}
		return *awsCfg, nil
	}

	var bucket *blob.S3
	switch cfg.BlobBackend {
	case "s3":
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME is required for the s3 blob backend")
		}
		bucket = blob.NewS3(s3.NewFromConfig(ac), cfg.S3Bucket)
		b.blobs = bucket
		b.checks["blobs"] = bucket.Ping
	case "cloudinary":
		if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			return nil, fmt.Errorf("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required")
		}
		b.blobs = blob.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	case "local":
		local, err := blob.NewLocal(cfg.LocalBlobDir)
		if err != nil {
			return nil, err
		}
		b.blobs = local
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}

	switch cfg.OracleBackend {
	case "rekognition":
		if bucket == nil {
			return nil, fmt.Errorf("the rekognition oracle reads references from S3; set BLOB_BACKEND=s3")
		}
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		rk := faceclient.NewRekognition(rekognition.NewFromConfig(ac), bucket.Bucket())
		b.oracle = rk
		b.checks["face_oracle"] = rk.Health
	case "http":
		fc := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, b.blobs)
		if cfg.FaceSkip {
			l.Warn("FACE_SKIP is set: every comparison matches")
		}
		b.oracle = fc
		b.checks["face_service"] = fc.Health
	default:
		return nil, fmt.Errorf("unknown ORACLE_BACKEND %q", cfg.OracleBackend)
	}

	switch cfg.RecordBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		repo := attendance.NewRepository(db.Client)
		if err := repo.EnsureSchema(ctx); err != nil {
			b.close(l)
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		b.records = repo
		b.checks["records"] = db.Ping
	case "dynamodb":
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		ds := attendance.NewDynamoStore(dynamodb.NewFromConfig(ac), cfg.DynamoTable)
		b.records = ds
		b.checks["records"] = ds.Ping
	case "memory":
		l.Warn("using in-memory record store; attendance is lost on restart")
		b.records = attendance.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown RECORD_BACKEND %q", cfg.RecordBackend)
	}

	if cfg.RedisAddr != "" {
		rdb := store.NewRedis(cfg.RedisAddr)
		b.closers = append(b.closers, rdb.Close)
		b.cache = recognition.NewRedisKeyCache(rdb.Client, cfg.RosterCacheTTL)
		b.checks["redis"] = rdb.Ping
	}

	return b, nil
}
