package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FrogOnABike/tubely/internal/auth"
	"github.com/FrogOnABike/tubely/internal/database"
	"github.com/FrogOnABike/tubely/internal/ingest"
	"github.com/FrogOnABike/tubely/internal/media"
	"github.com/FrogOnABike/tubely/internal/objectstore"
	"github.com/go-playground/validator/v10"
)

type urlSigner interface {
	SignURL(ctx context.Context, raw string, expireTime time.Duration) (string, error)
}

type apiConfig struct {
	db           database.Client
	jwtSecret    string
	platform     string
	filepathRoot string
	assetsRoot   string
	s3Bucket     string
	port         string
	urlSigner    urlSigner
	ingest       *ingest.Service
	validate     *validator.Validate
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	env, err := loadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if err := ensureDirs(env.AssetsRoot, env.TempRoot); err != nil {
		log.Fatalf("couldn't prepare directories: %v", err)
	}

	db, err := database.NewClient(env.DBPath)
	if err != nil {
		log.Fatalf("couldn't connect to database: %v", err)
	}
	defer db.Close()

	store, err := objectstore.New(context.Background(), env.S3Bucket, env.S3Region, env.S3CfDistribution)
	if err != nil {
		log.Fatalf("couldn't create S3 client: %v", err)
	}

	ingestService := ingest.New(
		ingest.Config{
			TempRoot:       env.TempRoot,
			AssetsRoot:     env.AssetsRoot,
			Port:           env.Port,
			ProcessTimeout: env.ProcessTimeout,
		},
		db,
		store,
		auth.Validator{Secret: env.JWTSecret},
		media.FFProbe{BinPath: env.FFprobePath},
		media.FFmpeg{BinPath: env.FFmpegPath},
		slog.Default(),
	)

	cfg := apiConfig{
		db:           db,
		jwtSecret:    env.JWTSecret,
		platform:     env.Platform,
		filepathRoot: env.FilepathRoot,
		assetsRoot:   env.AssetsRoot,
		s3Bucket:     env.S3Bucket,
		port:         env.Port,
		urlSigner:    store,
		ingest:       ingestService,
		validate:     validator.New(),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           cfg.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("serving", "port", cfg.port, "platform", cfg.platform, "bucket", cfg.s3Bucket)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}

func (cfg *apiConfig) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/app/", http.StripPrefix("/app", http.FileServer(http.Dir(cfg.filepathRoot))))
	mux.Handle("/assets/", http.StripPrefix("/assets", http.FileServer(http.Dir(cfg.assetsRoot))))

	mux.HandleFunc("GET /api/healthz", handlerReadiness)
	mux.HandleFunc("POST /api/users", cfg.handlerUsersCreate)
	mux.HandleFunc("POST /api/login", cfg.handlerLogin)

	mux.HandleFunc("POST /api/videos", cfg.handlerVideoMetaCreate)
	mux.HandleFunc("GET /api/videos", cfg.handlerVideosRetrieve)
	mux.HandleFunc("GET /api/videos/{videoID}", cfg.handlerVideoGet)
	mux.HandleFunc("DELETE /api/videos/{videoID}", cfg.handlerVideoMetaDelete)

	mux.HandleFunc("POST /api/thumbnail_upload/{videoID}", cfg.handlerUploadThumbnail)
	mux.HandleFunc("POST /api/video_upload/{videoID}", cfg.handlerUploadVideo)

	mux.HandleFunc("POST /admin/reset", cfg.handlerReset)
	return mux
}
