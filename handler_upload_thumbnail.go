package main

import (
	"net/http"

	"github.com/FrogOnABike/tubely/internal/auth"
	"github.com/FrogOnABike/tubely/internal/ingest"
	"github.com/google/uuid"
)

func (cfg *apiConfig) handlerUploadThumbnail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, ingest.MaxThumbnailSize+multipartOverhead)

	videoID, err := uuid.Parse(r.PathValue("videoID"))
	if err != nil {
		respondWithIngestError(w, &ingest.Error{Kind: ingest.KindBadRequest, Message: "Invalid ID", Err: err})
		return
	}

	token, err := auth.GetBearerToken(r.Header)
	if err != nil {
		respondWithIngestError(w, &ingest.Error{Kind: ingest.KindUnauthorized, Message: "Couldn't find JWT", Err: err})
		return
	}

	part := &formFile{r: r, field: "thumbnail"}
	defer part.Close()

	video, err := cfg.ingest.IngestThumbnail(r.Context(), ingest.Request{
		VideoID: videoID,
		Token:   token,
		Open:    part.Open,
	})
	if err != nil {
		respondWithIngestError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, video)
}
