package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/FrogOnABike/tubely/internal/database"
	"github.com/FrogOnABike/tubely/internal/media"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultProcessTimeout = 2 * time.Minute

// VideoStore is the metadata store the Service reads and updates records through.
type VideoStore interface {
	GetVideo(id uuid.UUID) (database.Video, error)
	UpdateVideo(video database.Video) error
}

// ObjectStore publishes processed videos and maps keys to public URLs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	URL(key string) string
}

// TokenValidator resolves a bearer token to the user it was issued for.
type TokenValidator interface {
	ValidateToken(token string) (uuid.UUID, error)
}

type Config struct {
	TempRoot   string
	AssetsRoot string
	// Port is used to build thumbnail URLs served by this process.
	Port string
	// ProcessTimeout bounds each ffprobe/ffmpeg run. Zero means two minutes.
	ProcessTimeout time.Duration
}

// Request identifies what is being uploaded and by whom.
type Request struct {
	VideoID uuid.UUID
	Token   string
	Open    OpenFunc
}

// Service runs uploads from the request body through to a stored, playable
// asset. It holds no per-request state and is safe for concurrent use.
type Service struct {
	config  Config
	videos  VideoStore
	objects ObjectStore
	tokens  TokenValidator
	prober  media.Prober
	remuxer media.Remuxer
	log     *slog.Logger
}

func New(config Config, videos VideoStore, objects ObjectStore, tokens TokenValidator, prober media.Prober, remuxer media.Remuxer, logger *slog.Logger) *Service {
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = defaultProcessTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:  config,
		videos:  videos,
		objects: objects,
		tokens:  tokens,
		prober:  prober,
		remuxer: remuxer,
		log:     logger,
	}
}

// authorize resolves the caller and loads the record they intend to modify.
// It runs before the upload body is touched.
func (s *Service) authorize(req Request) (database.Video, uuid.UUID, error) {
	if req.VideoID == uuid.Nil {
		return database.Video{}, uuid.Nil, newError(KindBadRequest, "Invalid video ID", nil)
	}
	if req.Token == "" {
		return database.Video{}, uuid.Nil, newError(KindUnauthorized, "Couldn't find JWT", nil)
	}
	userID, err := s.tokens.ValidateToken(req.Token)
	if err != nil {
		return database.Video{}, uuid.Nil, newError(KindUnauthorized, "Couldn't validate JWT", err)
	}

	video, err := s.videos.GetVideo(req.VideoID)
	if errors.Is(err, database.ErrNotFound) {
		return database.Video{}, userID, newError(KindForbidden, "Forbidden", err)
	}
	if err != nil {
		return database.Video{}, userID, newError(KindInternal, "Unable to retrieve video metadata", err)
	}
	if video.UserID != userID {
		return database.Video{}, userID, newError(KindForbidden, "Forbidden", fmt.Errorf("user %s does not own video %s", userID, video.ID))
	}
	return video, userID, nil
}

// IngestVideo validates the uploaded MP4, classifies its aspect ratio, rewrites
// it for fast start, stores it under "{category}/{random}.{ext}" and records the
// resulting URL on the video. Scratch files are removed on every return path.
func (s *Service) IngestVideo(ctx context.Context, req Request) (database.Video, error) {
	video, userID, err := s.authorize(req)
	if err != nil {
		return database.Video{}, err
	}

	upload, err := videoUpload.open(req.Open)
	if err != nil {
		return database.Video{}, err
	}
	mediaType, ext, err := videoUpload.validate(upload)
	if err != nil {
		return database.Video{}, err
	}

	log := s.log.With("video_id", video.ID, "user_id", userID)
	log.Info("uploading video", "media_type", mediaType, "size", upload.Size)

	rawPath, err := s.newScratchPath(video.ID, ext)
	if err != nil {
		return database.Video{}, newError(KindInternal, "Unable to create temp file", err)
	}
	// ffmpeg may leave a partial output behind even when it fails, so the
	// processed path is always part of cleanup.
	defer s.cleanup(log, rawPath, rawPath+media.ProcessedSuffix)

	if err := copyToFile(rawPath, upload.Body); err != nil {
		return database.Video{}, copyError(err, "Unable to save uploaded file")
	}

	category, err := s.classify(ctx, rawPath)
	if err != nil {
		return database.Video{}, err
	}

	processedPath, err := s.fastStart(ctx, rawPath)
	if err != nil {
		return database.Video{}, err
	}
	if processedPath != rawPath+media.ProcessedSuffix {
		defer s.cleanup(log, processedPath)
	}

	key, err := NewStorageKey(category, ext)
	if err != nil {
		return database.Video{}, newError(KindInternal, "Unable to generate storage key", err)
	}

	if err := s.publish(ctx, processedPath, key, mediaType); err != nil {
		return database.Video{}, err
	}

	url := s.objects.URL(key)
	video.VideoURL = &url
	if err := s.videos.UpdateVideo(video); err != nil {
		return database.Video{}, newError(KindInternal, "Unable to update video URL", err)
	}

	log.Info("video published", "key", key, "aspect", category)
	return video, nil
}

func (s *Service) classify(ctx context.Context, path string) (media.AspectCategory, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ProcessTimeout)
	defer cancel()

	dims, err := s.prober.Probe(ctx, path)
	if err != nil {
		return "", newError(KindProcessing, "Unable to determine video aspect ratio", err)
	}
	return media.Classify(dims.Width, dims.Height), nil
}

func (s *Service) fastStart(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ProcessTimeout)
	defer cancel()

	processed, err := s.remuxer.FastStart(ctx, path)
	if err != nil {
		return "", newError(KindProcessing, "Unable to process video", err)
	}
	return processed, nil
}

func (s *Service) publish(ctx context.Context, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return newError(KindInternal, "Unable to open processed video", err)
	}
	defer f.Close()

	if err := s.objects.Put(ctx, key, f, contentType); err != nil {
		return newError(KindStorage, "Unable to upload video to storage", err)
	}
	return nil
}

// newScratchPath reserves a file under TempRoot named after the video plus a
// per-request token, so concurrent uploads of one video do not collide.
func (s *Service) newScratchPath(videoID uuid.UUID, ext string) (string, error) {
	f, err := os.CreateTemp(s.config.TempRoot, fmt.Sprintf("%s-*.%s", videoID, ext))
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// cleanup removes every path concurrently. Failures are logged and otherwise
// ignored so they never mask the error already being returned.
func (s *Service) cleanup(log *slog.Logger, paths ...string) {
	var g errgroup.Group
	for _, path := range paths {
		g.Go(func() error {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Error("failed to remove scratch file", "path", path, "error", err)
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}

// IngestThumbnail stores an image in the assets directory and points the
// video's thumbnail URL at it.
func (s *Service) IngestThumbnail(_ context.Context, req Request) (database.Video, error) {
	video, userID, err := s.authorize(req)
	if err != nil {
		return database.Video{}, err
	}

	upload, err := thumbnailUpload.open(req.Open)
	if err != nil {
		return database.Video{}, err
	}
	_, ext, err := thumbnailUpload.validate(upload)
	if err != nil {
		return database.Video{}, err
	}

	log := s.log.With("video_id", video.ID, "user_id", userID)
	log.Info("uploading thumbnail")

	// The live {id}.{ext} is only replaced once the record update has gone
	// through, so a failed request leaves the current thumbnail alone.
	tmp, err := os.CreateTemp(s.config.AssetsRoot, fmt.Sprintf("%s-*.%s", video.ID, ext))
	if err != nil {
		return database.Video{}, newError(KindInternal, "Unable to save thumbnail", err)
	}
	tmpPath := tmp.Name()
	defer s.cleanup(log, tmpPath)

	if err := writeBody(tmp, upload.Body); err != nil {
		return database.Video{}, copyError(err, "Unable to save thumbnail")
	}

	filename := fmt.Sprintf("%s.%s", video.ID, ext)
	url := fmt.Sprintf("http://localhost:%s/assets/%s", s.config.Port, filename)
	video.ThumbnailURL = &url
	if err := s.videos.UpdateVideo(video); err != nil {
		return database.Video{}, newError(KindInternal, "Unable to update video thumbnail URL", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(s.config.AssetsRoot, filename)); err != nil {
		return database.Video{}, newError(KindInternal, "Unable to save thumbnail", err)
	}
	return video, nil
}
