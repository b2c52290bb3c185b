package database

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory test database with all models migrated.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// seedHierarchy creates an organization, site, and unit for tests that
// need the scope chain.
func seedHierarchy(t *testing.T, db *gorm.DB) (Organization, Site, Unit) {
	t.Helper()
	org := Organization{Name: "Acme", Timezone: "UTC"}
	if err := db.Create(&org).Error; err != nil {
		t.Fatalf("failed to create organization: %v", err)
	}
	site := Site{OrganizationID: org.ID, Name: "Plant 1"}
	if err := db.Create(&site).Error; err != nil {
		t.Fatalf("failed to create site: %v", err)
	}
	unit := Unit{SiteID: site.ID, OrganizationID: org.ID, Name: "Freezer A"}
	if err := db.Create(&unit).Error; err != nil {
		t.Fatalf("failed to create unit: %v", err)
	}
	return org, site, unit
}
