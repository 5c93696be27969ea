package deadletter

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event holds the raw parameters of a callback that could not be stored.
type Event struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	CallID      string         `gorm:"column:call_id;type:varchar(255);not null;index"`
	Params      datatypes.JSON `gorm:"column:params;not null"`
	ReceivedAt  time.Time      `gorm:"column:received_at;not null"`
	Error       string         `gorm:"column:error;type:text;not null"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending';not null"`
	RetryCount  int            `gorm:"column:retry_count;default:0;not null"`
	LastRetryAt *time.Time     `gorm:"column:last_retry_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
)

func (Event) TableName() string {
	return "event_dl"
}
