package responses

import (
	"time"
)

// Response is a user's offer on somebody else's task. A user may respond to
// a given task at most once; the composite unique index is the authority for
// that rule, not application-level reads.
type Response struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	TaskID    string    `gorm:"column:task_id;size:36;not null;uniqueIndex:idx_responses_task_user" json:"taskId"`
	UserID    string    `gorm:"column:user_id;size:36;not null;uniqueIndex:idx_responses_task_user" json:"userId"`
	Text      string    `gorm:"column:text;not null" json:"text"`
	Price     *int      `gorm:"column:price" json:"price"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName exposes the table backing task responses.
func (Response) TableName() string {
	return "responses"
}
