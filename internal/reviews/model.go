package reviews

import (
	"time"
)

// Review is immutable feedback left by one task participant about another
// after the task is done. Ratings are integers 1 through 5.
type Review struct {
	ID         string    `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	FromUserID string    `gorm:"column:from_user_id;size:36;not null;index" json:"fromUserId"`
	ToUserID   string    `gorm:"column:to_user_id;size:36;not null;index" json:"toUserId"`
	TaskID     string    `gorm:"column:task_id;size:36;not null;index" json:"taskId"`
	Rating     int       `gorm:"column:rating;not null" json:"rating"`
	Comment    string    `gorm:"column:comment" json:"comment,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName exposes the table backing reviews.
func (Review) TableName() string {
	return "reviews"
}
