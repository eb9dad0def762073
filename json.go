package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FrogOnABike/tubely/internal/ingest"
)

func respondWithError(w http.ResponseWriter, code int, msg string, err error) {
	if err != nil {
		slog.Error(msg, "status", code, "error", err)
	}
	respondWithJSON(w, code, errorResponse{Error: msg})
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

var ingestStatus = map[ingest.Kind]int{
	ingest.KindBadRequest:   http.StatusBadRequest,
	ingest.KindUnauthorized: http.StatusUnauthorized,
	ingest.KindForbidden:    http.StatusForbidden,
	ingest.KindProcessing:   http.StatusInternalServerError,
	ingest.KindStorage:      http.StatusBadGateway,
	ingest.KindInternal:     http.StatusInternalServerError,
}

// respondWithIngestError writes the caller-safe message for err. The wrapped
// cause, which may hold ffmpeg output or file paths, only goes to the log.
func respondWithIngestError(w http.ResponseWriter, err error) {
	kind := ingest.KindOf(err)
	msg := "Internal error"
	var ingestErr *ingest.Error
	if errors.As(err, &ingestErr) {
		msg = ingestErr.Message
	}

	code := ingestStatus[kind]
	slog.Log(context.Background(), ingestLogLevel(kind), msg, "status", code, "kind", kind.String(), "error", err)
	respondWithJSON(w, code, errorResponse{Error: msg, Kind: kind.String()})
}

// ingestLogLevel keeps ERROR for failures on our side; rejected requests are routine.
func ingestLogLevel(kind ingest.Kind) slog.Level {
	switch kind {
	case ingest.KindBadRequest, ingest.KindUnauthorized, ingest.KindForbidden:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	dat, err := json.Marshal(payload)
	if err != nil {
		slog.Error("error marshalling JSON", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	w.Write(dat)
}
