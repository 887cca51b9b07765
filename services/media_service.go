package services

import (
	"fmt"
	"path/filepath"
	"strings"

	"habit-duel-service/models"
	"habit-duel-service/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

const maxPhotoSizeBytes = 10 * 1024 * 1024 // 10MB

type MediaService struct {
	DB      *gorm.DB
	Storage utils.Storage
}

func NewMediaService(db *gorm.DB, storage utils.Storage) *MediaService {
	return &MediaService{DB: db, Storage: storage}
}

// UploadPhoto stores a photo proof and returns the asset id to reference from
// a photo certification.
func (s *MediaService) UploadPhoto(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	if fileHeader.Size > maxPhotoSizeBytes {
		return httpError(c, validationErr("file", "photo exceeds the 10MB limit"))
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return httpError(c, validationErr("file", "only image uploads are accepted"))
	}

	ext := filepath.Ext(fileHeader.Filename)
	base := strings.TrimSuffix(fileHeader.Filename, ext)
	assetID := uuid.NewString()
	key := fmt.Sprintf("certs/%s/%s-%s%s", userID, assetID, slug.Make(base), ext)

	url, err := s.Storage.Save(fileHeader, key)
	if err != nil {
		return httpError(c, fmt.Errorf("storage upload failed: %w", err))
	}

	asset := models.MediaAsset{
		ID:          assetID,
		UserID:      userID,
		StorageKey:  key,
		URL:         url,
		ContentType: contentType,
		SizeBytes:   fileHeader.Size,
	}
	if err := s.DB.Create(&asset).Error; err != nil {
		return httpError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(asset)
}

// GetMediaAsset returns one of the caller's uploaded assets.
func (s *MediaService) GetMediaAsset(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	id := c.Params("id")

	var asset models.MediaAsset
	if err := s.DB.Where("id = ? AND user_id = ?", id, userID).First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpError(c, ErrNotFound)
		}
		return httpError(c, err)
	}
	return c.JSON(asset)
}
