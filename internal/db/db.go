package db

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cortexhq/cortex-server/internal/chat"
	"github.com/cortexhq/cortex-server/internal/models"
	"github.com/cortexhq/cortex-server/internal/profile"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

// Migrate creates the schema. The vector extension must exist before the
// messages table because of the embedding column type.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return err
	}
	return gdb.AutoMigrate(
		&models.User{},
		&profile.Profile{},
		&chat.Conversation{},
		&chat.Message{},
		&chat.Job{},
	)
}
