package authz

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLevels persists authorization levels in PostgreSQL. Each registry scopes
// its rows with a component key so the ledger's and the manager's level stores
// stay independent.
type GormLevels struct {
	db        *gorm.DB
	component string
}

func NewGormLevels(db *gorm.DB, component string) *GormLevels {
	return &GormLevels{
		db:        db,
		component: component,
	}
}

func (g *GormLevels) GetLevel(ctx context.Context, principal string) (Role, bool, error) {
	var row authorizationLevelModel
	err := g.db.WithContext(ctx).
		Where("component = ? AND principal = ?", g.component, principal).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoleNone, false, nil
		}
		return RoleNone, false, err
	}
	return Role(row.Level), true, nil
}

func (g *GormLevels) SetLevel(ctx context.Context, principal string, role Role) error {
	row := authorizationLevelModel{
		Component: g.component,
		Principal: principal,
		Level:     uint8(role),
		UpdatedAt: time.Now().UTC(),
	}
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "component"}, {Name: "principal"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
		}).
		Create(&row).
		Error
}

type authorizationLevelModel struct {
	Component string    `gorm:"column:component;primaryKey"`
	Principal string    `gorm:"column:principal;primaryKey"`
	Level     uint8     `gorm:"column:level"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (authorizationLevelModel) TableName() string {
	return "authorization_levels"
}

var _ LevelStore = (*GormLevels)(nil)
