package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
}

type CreateUserParams struct {
	Email    string
	Password string
}

func (c Client) CreateUser(params CreateUserParams) (User, error) {
	now := time.Now().UTC()
	user := User{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Email:     params.Email,
		Password:  params.Password,
	}

	_, err := c.db.Exec(`
		INSERT INTO users (id, created_at, updated_at, email, password)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID.String(), user.CreatedAt, user.UpdatedAt, user.Email, user.Password,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (c Client) GetUserByEmail(email string) (User, error) {
	var (
		user User
		id   string
	)
	err := c.db.QueryRow(`
		SELECT id, created_at, updated_at, email, password
		FROM users WHERE email = $1`, email,
	).Scan(&id, &user.CreatedAt, &user.UpdatedAt, &user.Email, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}

	user.ID, err = uuid.Parse(id)
	if err != nil {
		return User{}, err
	}
	return user, nil
}
