package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"form-backend/auth"
	"form-backend/db"
	"form-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type SubmissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Submission, error)
	Get(ctx context.Context, id, userID primitive.ObjectID) (*models.Submission, error)
	Update(ctx context.Context, sub *models.Submission) error
	Delete(ctx context.Context, id, userID primitive.ObjectID) (*models.Submission, error)
}

type Handler struct {
	store       SubmissionStore
	uploads     *Uploads
	requireAuth gin.HandlerFunc
	log         *zap.Logger
}

func NewHandler(store SubmissionStore, uploads *Uploads, requireAuth gin.HandlerFunc, log *zap.Logger) *Handler {
	return &Handler{
		store:       store,
		uploads:     uploads,
		requireAuth: requireAuth,
		log:         log,
	}
}

func (h *Handler) Mount(g *gin.RouterGroup) {
	g.Use(h.requireAuth)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

type submissionRequest struct {
	Name    string `json:"name" form:"name" binding:"required"`
	Email   string `json:"email" form:"email" binding:"required"`
	Phone   string `json:"phone" form:"phone"`
	Subject string `json:"subject" form:"subject"`
	Message string `json:"message" form:"message" binding:"required"`
}

// bindSubmission decodes the body and validates the normalized email. It writes
// the error response itself and reports false when it did.
func bindSubmission(c *gin.Context, req *submissionRequest) bool {
	if err := c.ShouldBind(req); err != nil {
		bindError(c, err)
		return false
	}
	req.Email = auth.NormalizeEmail(req.Email)
	if !auth.ValidEmail(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request payload", "error": "invalid email address"})
		return false
	}
	return true
}

func (r submissionRequest) apply(sub *models.Submission) {
	sub.Name = strings.TrimSpace(r.Name)
	sub.Email = r.Email
	sub.Phone = strings.TrimSpace(r.Phone)
	sub.Subject = strings.TrimSpace(r.Subject)
	sub.Message = r.Message
}

func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	var req submissionRequest
	if !bindSubmission(c, &req) {
		return
	}

	attachment, ok := h.saveAttachment(c)
	if !ok {
		return
	}

	sub := &models.Submission{UserID: userID, Attachment: attachment}
	req.apply(sub)

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		h.removeAttachment(attachment)
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	subs, err := h.store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *Handler) Get(c *gin.Context) {
	userID, id, ok := ids(c)
	if !ok {
		return
	}

	sub, err := h.store.Get(c.Request.Context(), id, userID)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Submission not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) Update(c *gin.Context) {
	userID, id, ok := ids(c)
	if !ok {
		return
	}

	var req submissionRequest
	if !bindSubmission(c, &req) {
		return
	}

	sub, err := h.store.Get(c.Request.Context(), id, userID)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Submission not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	attachment, ok := h.saveAttachment(c)
	if !ok {
		return
	}
	previous := sub.Attachment
	if attachment != nil {
		sub.Attachment = attachment
	}
	req.apply(sub)

	err = h.store.Update(c.Request.Context(), sub)
	if err != nil {
		h.removeAttachment(attachment)
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Submission not found"})
			return
		}
		_ = c.Error(err)
		return
	}
	if attachment != nil {
		h.removeAttachment(previous)
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) Delete(c *gin.Context) {
	userID, id, ok := ids(c)
	if !ok {
		return
	}

	sub, err := h.store.Delete(c.Request.Context(), id, userID)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Submission not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.removeAttachment(sub.Attachment)
	c.JSON(http.StatusOK, gin.H{"message": "Submission deleted"})
}

// saveAttachment stores the optional "attachment" file of a multipart body.
// It writes the error response itself and reports false when it did.
func (h *Handler) saveAttachment(c *gin.Context) (*models.Attachment, bool) {
	if c.ContentType() != binding.MIMEMultipartPOSTForm {
		return nil, true
	}

	file, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		bindError(c, err)
		return nil, false
	}

	attachment, err := h.uploads.Save(c, file)
	if errors.Is(err, ErrTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Attachment too large"})
		return nil, false
	}
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return attachment, true
}

func (h *Handler) removeAttachment(a *models.Attachment) {
	if err := h.uploads.Remove(a); err != nil {
		h.log.Warn("remove attachment", zap.String("file", a.StoredName), zap.Error(err))
	}
}

func ids(c *gin.Context) (userID, id primitive.ObjectID, ok bool) {
	userID, ok = auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return userID, id, false
	}
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid submission ID"})
		return userID, id, false
	}
	return userID, id, true
}

func bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request payload", "error": err.Error()})
}
