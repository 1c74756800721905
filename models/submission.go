package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Submission struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"user_id" json:"userId"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Subject    string             `bson:"subject,omitempty" json:"subject,omitempty"`
	Message    string             `bson:"message" json:"message"`
	Attachment *Attachment        `bson:"attachment,omitempty" json:"attachment,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Attachment describes a file stored in the uploads directory.
type Attachment struct {
	FileName    string `bson:"file_name" json:"fileName"`
	StoredName  string `bson:"stored_name" json:"-"`
	URL         string `bson:"url" json:"url"`
	Size        int64  `bson:"size" json:"size"`
	ContentType string `bson:"content_type,omitempty" json:"contentType,omitempty"`
}
