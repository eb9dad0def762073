package main

import (
	"encoding/json"
	"net/http"

	"github.com/FrogOnABike/tubely/internal/auth"
	"github.com/FrogOnABike/tubely/internal/database"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (cfg *apiConfig) decodeCredentials(r *http.Request) (credentials, error) {
	var params credentials
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		return credentials{}, err
	}
	if err := cfg.validate.Struct(params); err != nil {
		return credentials{}, err
	}
	return params, nil
}

func (cfg *apiConfig) handlerUsersCreate(w http.ResponseWriter, r *http.Request) {
	params, err := cfg.decodeCredentials(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Couldn't decode parameters", err)
		return
	}

	hashedPassword, err := auth.HashPassword(params.Password)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Couldn't hash password", err)
		return
	}

	user, err := cfg.db.CreateUser(database.CreateUserParams{
		Email:    params.Email,
		Password: hashedPassword,
	})
	if err != nil {
		respondWithError(w, http.StatusConflict, "Couldn't create user", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, user)
}
