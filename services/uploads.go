package services

import (
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"form-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var ErrTooLarge = errors.New("file too large")

// Uploads stores attachments under dir with random names and reports the URL
// they are served from under prefix.
type Uploads struct {
	dir     string
	prefix  string
	maxSize int64
}

func NewUploads(dir, prefix string, maxSize int64) *Uploads {
	return &Uploads{dir: dir, prefix: prefix, maxSize: maxSize}
}

func (u *Uploads) Save(c *gin.Context, file *multipart.FileHeader) (*models.Attachment, error) {
	if file.Size > u.maxSize {
		return nil, ErrTooLarge
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if len(ext) > 16 {
		ext = ""
	}
	stored := uuid.NewString() + ext

	if err := c.SaveUploadedFile(file, filepath.Join(u.dir, stored)); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	return &models.Attachment{
		FileName:    filepath.Base(file.Filename),
		StoredName:  stored,
		URL:         path.Join(u.prefix, stored),
		Size:        file.Size,
		ContentType: file.Header.Get("Content-Type"),
	}, nil
}

// Remove deletes the stored file. A file that is already gone is not an error.
func (u *Uploads) Remove(a *models.Attachment) error {
	if a == nil || a.StoredName == "" {
		return nil
	}
	if a.StoredName != filepath.Base(a.StoredName) {
		return fmt.Errorf("refusing to remove %q", a.StoredName)
	}
	err := os.Remove(filepath.Join(u.dir, a.StoredName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
