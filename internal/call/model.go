package call

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

type Record struct {
	CallID        string                      `gorm:"column:call_id;type:varchar(255);primaryKey" json:"call_id"`
	FromNumber    string                      `gorm:"column:from_number"                          json:"from_number"`
	ToNumber      string                      `gorm:"column:to_number"                            json:"to_number"`
	PhoneMAC      string                      `gorm:"column:phone_mac;index"                      json:"phone_mac"`
	Started       time.Time                   `gorm:"column:started;not null;index"               json:"started"`
	Finished      *time.Time                  `gorm:"column:finished"                             json:"finished"`
	Direction     string                      `gorm:"column:direction;type:varchar(16);not null"  json:"direction"`
	Status        string                      `gorm:"column:status;type:varchar(20);not null"     json:"status"`
	TotalDuration *int                        `gorm:"column:total_duration"                       json:"total_duration"`
	Transfers     datatypes.JSONSlice[string] `gorm:"column:transfers;not null"                   json:"transfers"`
	Version       int                         `gorm:"column:version;not null;default:0"           json:"-"`
}

func (Record) TableName() string {
	return "calls"
}

const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

const (
	StatusInProgress   = "in_progress"
	StatusAnswered     = "answered"
	StatusOnHold       = "on_hold"
	StatusSuccessful   = "successful"
	StatusUnsuccessful = "unsuccessful"
)

// Terminal reports whether the call has ended.
func (r *Record) Terminal() bool {
	return r.Status == StatusSuccessful || r.Status == StatusUnsuccessful
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	clone := *r

	if r.Finished != nil {
		finished := *r.Finished
		clone.Finished = &finished
	}

	if r.TotalDuration != nil {
		duration := *r.TotalDuration
		clone.TotalDuration = &duration
	}

	clone.Transfers = slices.Clone(r.Transfers)
	if clone.Transfers == nil {
		clone.Transfers = datatypes.JSONSlice[string]{}
	}

	return &clone
}
