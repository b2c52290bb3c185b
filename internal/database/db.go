package database

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// Models returns every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		// Tenancy (read-side collaborators)
		&Organization{},
		&Site{},
		&Unit{},
		&User{},
		&UnitAssignment{},
		// Policy models
		&NotificationPolicy{},
		&EscalationContact{},
		// Alert models
		&Alert{},
		&NotificationDelivery{},
		&AlertSourceInstance{},
		// Settings
		&EngineSettings{},
		&SlackSettings{},
	}
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	err := DB.AutoMigrate(Models()...)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults() error {
	log.Println("Initializing default database records...")

	var count int64
	DB.Model(&EngineSettings{}).Count(&count)
	if count == 0 {
		if err := DB.Create(NewDefaultEngineSettings()).Error; err != nil {
			return fmt.Errorf("failed to create default engine settings: %w", err)
		}
		log.Println("Created default engine settings")
	}

	DB.Model(&SlackSettings{}).Count(&count)
	if count == 0 {
		if err := DB.Create(&SlackSettings{Enabled: false}).Error; err != nil {
			return fmt.Errorf("failed to create default slack settings: %w", err)
		}
		log.Println("Created default Slack settings (disabled)")
	}

	// A default alert source instance so a fresh install has a working
	// webhook endpoint out of the box.
	DB.Model(&AlertSourceInstance{}).Count(&count)
	if count == 0 {
		instance := &AlertSourceInstance{
			UUID:        uuid.New().String(),
			Name:        "default",
			Description: "Default alert source created at first startup",
			Enabled:     true,
		}
		if err := DB.Create(instance).Error; err != nil {
			return fmt.Errorf("failed to create default alert source: %w", err)
		}
		log.Printf("Created default alert source instance (uuid: %s)", instance.UUID)
	}

	return nil
}

// GetEngineSettings retrieves or creates the engine settings singleton.
// Accepts a db parameter to support dependency injection, transaction
// contexts, and easier testing.
func GetEngineSettings(db *gorm.DB) (*EngineSettings, error) {
	var settings EngineSettings
	result := db.First(&settings)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		settings = *NewDefaultEngineSettings()
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateEngineSettings updates the engine settings singleton.
func UpdateEngineSettings(db *gorm.DB, settings *EngineSettings) error {
	return db.Save(settings).Error
}

// GetSlackSettings retrieves or creates the Slack settings singleton.
func GetSlackSettings(db *gorm.DB) (*SlackSettings, error) {
	var settings SlackSettings
	result := db.First(&settings)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		settings = SlackSettings{Enabled: false}
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateSlackSettings updates Slack settings in the database
func UpdateSlackSettings(db *gorm.DB, settings *SlackSettings) error {
	return db.Model(&SlackSettings{}).Where("id = ?", settings.ID).Updates(map[string]interface{}{
		"bot_token":   settings.BotToken,
		"ops_channel": settings.OpsChannel,
		"enabled":     settings.Enabled,
	}).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
