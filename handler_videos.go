package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/FrogOnABike/tubely/internal/auth"
	"github.com/FrogOnABike/tubely/internal/database"
	"github.com/google/uuid"
)

const presignExpiry = 5 * time.Minute

// authenticate returns the user id carried by the request's bearer token.
func (cfg *apiConfig) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	token, err := auth.GetBearerToken(r.Header)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Couldn't find JWT", err)
		return uuid.Nil, false
	}
	userID, err := auth.ValidateJWT(token, cfg.jwtSecret)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Couldn't validate JWT", err)
		return uuid.Nil, false
	}
	return userID, true
}

func (cfg *apiConfig) handlerVideoMetaCreate(w http.ResponseWriter, r *http.Request) {
	type parameters struct {
		Title       string `json:"title" validate:"required,max=200"`
		Description string `json:"description" validate:"max=5000"`
	}

	userID, ok := cfg.authenticate(w, r)
	if !ok {
		return
	}

	var params parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondWithError(w, http.StatusBadRequest, "Couldn't decode parameters", err)
		return
	}
	if err := cfg.validate.Struct(params); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid parameters", err)
		return
	}

	video, err := cfg.db.CreateVideo(database.CreateVideoParams{
		Title:       params.Title,
		Description: params.Description,
		UserID:      userID,
	})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't create video", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, video)
}

func (cfg *apiConfig) handlerVideoGet(w http.ResponseWriter, r *http.Request) {
	videoID, err := uuid.Parse(r.PathValue("videoID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid video ID", err)
		return
	}

	video, err := cfg.db.GetVideo(videoID)
	if errors.Is(err, database.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Couldn't find video", nil)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't get video", err)
		return
	}

	video, err = cfg.signVideo(r, video)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't sign video URL", err)
		return
	}
	respondWithJSON(w, http.StatusOK, video)
}

func (cfg *apiConfig) handlerVideosRetrieve(w http.ResponseWriter, r *http.Request) {
	userID, ok := cfg.authenticate(w, r)
	if !ok {
		return
	}

	videos, err := cfg.db.GetVideos(userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't retrieve videos", err)
		return
	}

	for i := range videos {
		videos[i], err = cfg.signVideo(r, videos[i])
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Couldn't sign video URL", err)
			return
		}
	}
	respondWithJSON(w, http.StatusOK, videos)
}

func (cfg *apiConfig) handlerVideoMetaDelete(w http.ResponseWriter, r *http.Request) {
	videoID, err := uuid.Parse(r.PathValue("videoID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", err)
		return
	}

	userID, ok := cfg.authenticate(w, r)
	if !ok {
		return
	}

	video, err := cfg.db.GetVideo(videoID)
	if errors.Is(err, database.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Couldn't find video", nil)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't get video", err)
		return
	}
	if video.UserID != userID {
		respondWithError(w, http.StatusForbidden, "You can't delete this video", nil)
		return
	}

	if err := cfg.db.DeleteVideo(videoID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't delete video", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// signVideo swaps a raw bucket URL for a short-lived presigned one.
func (cfg *apiConfig) signVideo(r *http.Request, video database.Video) (database.Video, error) {
	if video.VideoURL == nil || *video.VideoURL == "" || cfg.urlSigner == nil {
		return video, nil
	}
	signed, err := cfg.urlSigner.SignURL(r.Context(), *video.VideoURL, presignExpiry)
	if err != nil {
		return database.Video{}, err
	}
	video.VideoURL = &signed
	return video, nil
}
