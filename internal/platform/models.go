package platform

import (
	"time"

	"gorm.io/gorm"
)

// Message is a chat message posted in a study room. Deleting one sets
// DeletedAt; the row stays for moderation.
type Message struct {
	ID        string         `gorm:"size:64;primaryKey" json:"id"`
	RoomID    string         `gorm:"size:64;not null;index" json:"room_id"`
	SenderID  string         `gorm:"size:64;not null;index" json:"sender_id"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

// Document is a file uploaded to a room's library.
type Document struct {
	ID         string         `gorm:"size:64;primaryKey" json:"id"`
	RoomID     string         `gorm:"size:64;index" json:"room_id"`
	UploaderID string         `gorm:"size:64;not null;index" json:"uploader_id"`
	Title      string         `gorm:"size:255" json:"title"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// User is a platform account.
type User struct {
	ID          string         `gorm:"size:64;primaryKey" json:"id"`
	DisplayName string         `gorm:"size:100" json:"display_name"`
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// RoomMember records a user's role in a room.
type RoomMember struct {
	RoomID   string    `gorm:"size:64;primaryKey" json:"room_id"`
	UserID   string    `gorm:"size:64;primaryKey" json:"user_id"`
	Role     string    `gorm:"size:20;not null;default:'member'" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func (RoomMember) TableName() string {
	return "room_members"
}
