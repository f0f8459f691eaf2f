package migrate

import "gorm.io/gorm"

// All returns the registered migrations beyond the base schema.
func All() []Migration {
	return []Migration{
		{
			Version:     2,
			Description: "store extracted paper text on papers",
			Run: func(tx *gorm.DB) error {
				return tx.Exec(`ALTER TABLE papers ADD COLUMN full_text TEXT NOT NULL DEFAULT ''`).Error
			},
		},
	}
}
