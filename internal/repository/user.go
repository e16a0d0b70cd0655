package repository

import (
	"context"

	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate registers a chat user on first contact and refreshes the name.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64, userName string) (*models.User, error) {
	user := &models.User{}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO users (user_id, user_name) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_name = EXCLUDED.user_name
		 RETURNING user_id, user_name, created_at`,
		userID, userName,
	).Scan(&user.UserID, &user.UserName, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}
