package session

import (
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/pkg/common"
)

// TopicStateChanged is published on every lifecycle transition.
const TopicStateChanged = "session:state_changed"

// StateChange describes one lifecycle transition.
type StateChange struct {
	SessionName string
	FromState   string
	ToState     string
	Reason      string
}

// NewEventBus returns the bus used for session lifecycle events.
func NewEventBus() EventBus.Bus {
	return EventBus.New()
}

// SubscribeAuditLog attaches the audit subscriber: every transition is logged
// and persisted to session_event_log.
func SubscribeAuditLog(bus EventBus.Bus, db *gorm.DB) error {
	return bus.Subscribe(TopicStateChanged, func(change StateChange) {
		zap.L().Info("session state changed",
			zap.String("session", change.SessionName),
			zap.String("from", change.FromState),
			zap.String("to", change.ToState),
			zap.String("reason", change.Reason))
		if err := db.Create(&domain.SessionEventLog{
			ID:          common.UUIDint64(),
			SessionName: change.SessionName,
			FromState:   change.FromState,
			ToState:     change.ToState,
			Reason:      change.Reason,
			CreatedAt:   time.Now(),
		}).Error; err != nil {
			zap.L().Warn("failed to persist session event", zap.Error(err))
		}
	})
}
