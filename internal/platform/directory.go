// Package platform reads the study platform's own tables (messages,
// documents, users and room memberships) on behalf of the moderation engine.
package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tangled.org/studyhub.social/warden/internal/moderation"
)

// Directory resolves reported items, soft-deletes messages and looks up
// room roles. It implements moderation.MessageDeleter and
// moderation.MembershipLookup.
type Directory struct {
	db *gorm.DB
}

var (
	_ moderation.MessageDeleter   = (*Directory)(nil)
	_ moderation.MembershipLookup = (*Directory)(nil)
)

// Open connects to the platform database.
func Open(dsn string) (*Directory, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to platform database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info().Msg("Platform database connected")
	return NewDirectory(db), nil
}

// NewDirectory wraps an existing gorm handle.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Close releases the connection pool.
func (d *Directory) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormLogger routes slow queries and errors through zerolog.
func gormLogger() logger.Interface {
	return logger.New(&log.Logger, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Lookups returns the item resolvers keyed by item type.
func (d *Directory) Lookups() map[moderation.ItemType]moderation.ItemLookup {
	return map[moderation.ItemType]moderation.ItemLookup{
		moderation.ItemMessage:  moderation.ItemLookupFunc(d.LookupMessage),
		moderation.ItemDocument: moderation.ItemLookupFunc(d.LookupDocument),
		moderation.ItemUser:     moderation.ItemLookupFunc(d.LookupUser),
	}
}

// LookupMessage finds a message, including soft-deleted ones.
func (d *Directory) LookupMessage(ctx context.Context, id string) (*moderation.ReportedItem, error) {
	var m Message
	res := d.db.WithContext(ctx).Unscoped().Where("id = ?", id).Limit(1).Find(&m)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return messageItem(&m), nil
}

// LookupDocument finds a document, including deleted ones.
func (d *Directory) LookupDocument(ctx context.Context, id string) (*moderation.ReportedItem, error) {
	var doc Document
	res := d.db.WithContext(ctx).Unscoped().Where("id = ?", id).Limit(1).Find(&doc)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return documentItem(&doc), nil
}

// LookupUser finds a user account.
func (d *Directory) LookupUser(ctx context.Context, id string) (*moderation.ReportedItem, error) {
	var u User
	res := d.db.WithContext(ctx).Unscoped().Where("id = ?", id).Limit(1).Find(&u)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return userItem(&u), nil
}

// SoftDeleteMessage marks a message deleted. Missing and already deleted
// messages are left alone.
func (d *Directory) SoftDeleteMessage(ctx context.Context, id string) error {
	if err := d.db.WithContext(ctx).Delete(&Message{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	return nil
}

// RoomRole returns the user's role in a room. ok is false when the user is
// not a member.
func (d *Directory) RoomRole(ctx context.Context, roomID, userID string) (moderation.RoomRole, bool, error) {
	var member RoomMember
	res := d.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).Limit(1).Find(&member)
	if res.Error != nil {
		return "", false, fmt.Errorf("failed to load membership: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", false, nil
	}
	return moderation.RoomRole(member.Role), true, nil
}

func messageItem(m *Message) *moderation.ReportedItem {
	return &moderation.ReportedItem{
		ID:        m.ID,
		Type:      moderation.ItemMessage,
		OwnerID:   m.SenderID,
		RoomID:    m.RoomID,
		Summary:   m.Content,
		Deleted:   m.DeletedAt.Valid,
		CreatedAt: m.CreatedAt,
	}
}

func documentItem(doc *Document) *moderation.ReportedItem {
	return &moderation.ReportedItem{
		ID:        doc.ID,
		Type:      moderation.ItemDocument,
		OwnerID:   doc.UploaderID,
		RoomID:    doc.RoomID,
		Summary:   doc.Title,
		Deleted:   doc.DeletedAt.Valid,
		CreatedAt: doc.CreatedAt,
	}
}

func userItem(u *User) *moderation.ReportedItem {
	return &moderation.ReportedItem{
		ID:        u.ID,
		Type:      moderation.ItemUser,
		OwnerID:   u.ID,
		Summary:   u.DisplayName,
		Deleted:   u.DeletedAt.Valid,
		CreatedAt: u.CreatedAt,
	}
}
