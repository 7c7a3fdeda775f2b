package categories

// Category groups marketplace tasks into a browsable taxonomy.
type Category struct {
	ID          string `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	Slug        string `gorm:"column:slug;size:64;not null;uniqueIndex" json:"slug"`
	Title       string `gorm:"column:title;size:190;not null" json:"title"`
	Description string `gorm:"column:description;size:512" json:"description"`
	Sort        int    `gorm:"column:sort;not null;default:0" json:"sort"`
	Active      bool   `gorm:"column:active;not null;default:true" json:"active"`

	Specializations []Specialization `gorm:"foreignKey:CategoryID" json:"specializations,omitempty"`
}

// TableName exposes the table backing categories.
func (Category) TableName() string {
	return "categories"
}

// Specialization is a narrower skill inside a category; tasks reference up
// to five of them.
type Specialization struct {
	ID         string `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	Slug       string `gorm:"column:slug;size:64;not null;uniqueIndex" json:"slug"`
	Title      string `gorm:"column:title;size:190;not null" json:"title"`
	CategoryID string `gorm:"column:category_id;size:36;not null;index" json:"categoryId"`
	Sort       int    `gorm:"column:sort;not null;default:0" json:"sort"`
	Active     bool   `gorm:"column:active;not null;default:true" json:"active"`
}

// TableName exposes the table backing specializations.
func (Specialization) TableName() string {
	return "specializations"
}
