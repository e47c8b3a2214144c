package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"flowtask/internal/model"
)

// SubscriberRepository tracks the chats that talk to the bot.
type SubscriberRepository struct {
	db *gorm.DB
}

func NewSubscriberRepository(db *gorm.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// UpsertFromTelegram finds or creates a subscriber by chat id and refreshes the profile fields.
func (r *SubscriberRepository) UpsertFromTelegram(ctx context.Context, chatID int64, firstName, lastName, username string) (*model.Subscriber, error) {
	var sub model.Subscriber
	db := r.db.WithContext(ctx)
	err := db.Where("chat_id = ?", chatID).First(&sub).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		}
		if err := db.Model(&sub).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update subscriber: %w", err)
		}
		return &sub, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub = model.Subscriber{
			ChatID:        chatID,
			FirstName:     firstName,
			LastName:      lastName,
			Username:      username,
			DigestEnabled: true,
		}
		if err := db.Create(&sub).Error; err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}
		return &sub, nil
	default:
		return nil, fmt.Errorf("find subscriber: %w", err)
	}
}

// FindByChatID returns nil when the chat never started the bot.
func (r *SubscriberRepository) FindByChatID(ctx context.Context, chatID int64) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&sub).Error
	switch {
	case err == nil:
		return &sub, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find subscriber: %w", err)
	}
}

func (r *SubscriberRepository) ListDigestEnabled(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	if err := r.db.WithContext(ctx).Where("digest_enabled = ?", true).Order("id ASC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, nil
}

func (r *SubscriberRepository) SetDigest(ctx context.Context, chatID int64, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&model.Subscriber{}).Where("chat_id = ?", chatID).Update("digest_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("set digest: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set digest for chat %d: %w", chatID, ErrNotFound)
	}
	return nil
}
