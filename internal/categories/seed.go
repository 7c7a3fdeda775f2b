package categories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedCategory struct {
	slug        string
	title       string
	description string
	sort        int
	specs       []seedSpecialization
}

type seedSpecialization struct {
	slug  string
	title string
	sort  int
}

var seedCatalog = []seedCategory{
	{
		slug:        "development",
		title:       "Development",
		description: "Web applications, mobile apps, websites and other digital products",
		sort:        1,
		specs: []seedSpecialization{
			{slug: "frontend", title: "Frontend development", sort: 1},
			{slug: "backend", title: "Backend development", sort: 2},
			{slug: "mobile", title: "Mobile development", sort: 3},
			{slug: "fullstack", title: "Fullstack development", sort: 4},
		},
	},
	{
		slug:        "design",
		title:       "Design",
		description: "Visual content, interface design, graphic and motion design",
		sort:        2,
		specs: []seedSpecialization{
			{slug: "uiux", title: "UI/UX design", sort: 1},
			{slug: "graphic", title: "Graphic design", sort: 2},
			{slug: "motion", title: "Motion design", sort: 3},
		},
	},
	{
		slug:        "marketing",
		title:       "Marketing",
		description: "Product promotion, social media, SEO and content marketing",
		sort:        3,
		specs: []seedSpecialization{
			{slug: "smm", title: "Social media marketing", sort: 1},
			{slug: "seo", title: "SEO", sort: 2},
			{slug: "content", title: "Content marketing", sort: 3},
		},
	},
}

// Seed inserts the default category catalog. Existing slugs are left
// untouched, so the call is idempotent across restarts.
func Seed(db *gorm.DB) error {
	for _, entry := range seedCatalog {
		category := Category{
			ID:          uuid.NewString(),
			Slug:        entry.slug,
			Title:       entry.title,
			Description: entry.description,
			Sort:        entry.sort,
			Active:      true,
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).Create(&category).Error
		if err != nil {
			return err
		}

		var persisted Category
		if err := db.Where("slug = ?", entry.slug).First(&persisted).Error; err != nil {
			return err
		}

		for _, spec := range entry.specs {
			specialization := Specialization{
				ID:         uuid.NewString(),
				Slug:       spec.slug,
				Title:      spec.title,
				CategoryID: persisted.ID,
				Sort:       spec.sort,
				Active:     true,
			}
			err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoNothing: true,
			}).Create(&specialization).Error
			if err != nil {
				return err
			}
		}
	}
	return nil
}
