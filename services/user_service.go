package services

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"habit-duel-service/models"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// GetMe returns the caller's mirrored profile plus balance.
func (s *UserService) GetMe(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpError(c, ErrNotFound)
		}
		return httpError(c, err)
	}
	return c.JSON(user)
}

// ListUserIDs returns every known user id; the settlement scheduler sweeps
// this set each tick.
func (s *UserService) ListUserIDs() ([]string, error) {
	var ids []string
	if err := s.DB.Model(&models.User{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
