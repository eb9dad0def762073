package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/FrogOnABike/tubely/internal/auth"
	"github.com/FrogOnABike/tubely/internal/database"
)

const accessTokenTTL = time.Hour

func (cfg *apiConfig) handlerLogin(w http.ResponseWriter, r *http.Request) {
	type response struct {
		database.User
		Token string `json:"token"`
	}

	params, err := cfg.decodeCredentials(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Couldn't decode parameters", err)
		return
	}

	user, err := cfg.db.GetUserByEmail(params.Email)
	if errors.Is(err, database.ErrNotFound) {
		respondWithError(w, http.StatusUnauthorized, "Incorrect email or password", nil)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't get user", err)
		return
	}

	if err := auth.CheckPasswordHash(params.Password, user.Password); err != nil {
		respondWithError(w, http.StatusUnauthorized, "Incorrect email or password", nil)
		return
	}

	token, err := auth.MakeJWT(user.ID, cfg.jwtSecret, accessTokenTTL)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't create access JWT", err)
		return
	}

	respondWithJSON(w, http.StatusOK, response{User: user, Token: token})
}
