package actionlog

import "time"

// Entry is the raw request URL of one action URL callback.
type Entry struct {
	ID       uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Received time.Time `gorm:"column:received;not null"          json:"received"`
	URL      string    `gorm:"column:url;type:text"               json:"url"`
}

func (Entry) TableName() string {
	return "logs"
}
