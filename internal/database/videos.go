package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Video struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	VideoURL     *string   `json:"video_url"`
	CreateVideoParams
}

type CreateVideoParams struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UserID      uuid.UUID `json:"user_id"`
}

const videoColumns = `id, created_at, updated_at, title, description, thumbnail_url, video_url, user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (Video, error) {
	var (
		video        Video
		id, userID   string
		thumbnailURL sql.NullString
		videoURL     sql.NullString
	)
	err := row.Scan(&id, &video.CreatedAt, &video.UpdatedAt, &video.Title, &video.Description, &thumbnailURL, &videoURL, &userID)
	if err != nil {
		return Video{}, err
	}

	if video.ID, err = uuid.Parse(id); err != nil {
		return Video{}, err
	}
	if video.UserID, err = uuid.Parse(userID); err != nil {
		return Video{}, err
	}
	if thumbnailURL.Valid {
		video.ThumbnailURL = &thumbnailURL.String
	}
	if videoURL.Valid {
		video.VideoURL = &videoURL.String
	}
	return video, nil
}

func (c Client) CreateVideo(params CreateVideoParams) (Video, error) {
	now := time.Now().UTC()
	video := Video{
		ID:                uuid.New(),
		CreatedAt:         now,
		UpdatedAt:         now,
		CreateVideoParams: params,
	}

	_, err := c.db.Exec(`
		INSERT INTO videos (id, created_at, updated_at, title, description, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		video.ID.String(), video.CreatedAt, video.UpdatedAt, video.Title, video.Description, video.UserID.String(),
	)
	if err != nil {
		return Video{}, err
	}
	return video, nil
}

// GetVideo returns ErrNotFound when no video has the given id.
func (c Client) GetVideo(id uuid.UUID) (Video, error) {
	row := c.db.QueryRow(`SELECT `+videoColumns+` FROM videos WHERE id = $1`, id.String())
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	return video, err
}

func (c Client) GetVideos(userID uuid.UUID) ([]Video, error) {
	rows, err := c.db.Query(`SELECT `+videoColumns+` FROM videos WHERE user_id = $1 ORDER BY created_at DESC`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// UpdateVideo overwrites the mutable fields of an existing video. The last
// writer wins; there is no version check.
func (c Client) UpdateVideo(video Video) error {
	res, err := c.db.Exec(`
		UPDATE videos
		SET title = $1, description = $2, thumbnail_url = $3, video_url = $4, updated_at = $5
		WHERE id = $6`,
		video.Title, video.Description, video.ThumbnailURL, video.VideoURL, time.Now().UTC(), video.ID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c Client) DeleteVideo(id uuid.UUID) error {
	_, err := c.db.Exec(`DELETE FROM videos WHERE id = $1`, id.String())
	return err
}
