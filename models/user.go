package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GoogleID  string             `bson:"google_id,omitempty" json:"-"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password,omitempty" json:"-"`
	Name      string             `bson:"name,omitempty" json:"name"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}
