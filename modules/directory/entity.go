package directory

import "time"

// Profile is the directory record of a user.
type Profile struct {
	UserID      string    `gorm:"primarykey;size:128" json:"user_id"`
	DisplayName string    `gorm:"size:100;not null" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for Profile model.
func (Profile) TableName() string {
	return "profiles"
}
