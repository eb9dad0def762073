package main

import (
	"mime/multipart"
	"net/http"

	"github.com/FrogOnABike/tubely/internal/auth"
	"github.com/FrogOnABike/tubely/internal/ingest"
	"github.com/google/uuid"
)

// multipartOverhead leaves room for boundaries and part headers on top of the file cap.
const multipartOverhead = 1 << 20

func (cfg *apiConfig) handlerUploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, ingest.MaxVideoSize+multipartOverhead)

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

	part := &formFile{r: r, field: "video"}
	defer part.Close()

	video, err := cfg.ingest.IngestVideo(r.Context(), ingest.Request{
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

// formFile defers parsing the multipart body until Open is called.
type formFile struct {
	r     *http.Request
	field string
	file  multipart.File
}

func (f *formFile) Open() (ingest.Upload, error) {
	file, header, err := f.r.FormFile(f.field)
	if err != nil {
		return ingest.Upload{}, err
	}
	f.file = file
	return ingest.Upload{
		Body:      file,
		Size:      header.Size,
		MediaType: header.Header.Get("Content-Type"),
	}, nil
}

// Close releases the part and any temp files the multipart reader spilled to disk.
func (f *formFile) Close() {
	if f.file != nil {
		f.file.Close()
	}
	if f.r.MultipartForm != nil {
		f.r.MultipartForm.RemoveAll()
	}
}
