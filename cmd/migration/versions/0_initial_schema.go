package versions

import (
	"log"

	"gorm.io/gorm"

	"dar_platform/dar_backend/schema"
)

func Migration_0_initial_schema(txn *gorm.DB) error {
	log.Println("creating initial schema")

	err := txn.Migrator().AutoMigrate(
		&schema.User{}, &schema.Workspace{}, &schema.WorkspaceGrant{},
		&schema.Request{}, &schema.RequestTable{}, &schema.RequestColumn{},
	)
	if err != nil {
		return err
	}

	log.Println("initial schema created")

	return nil
}

func Rollback_0_initial_schema(txn *gorm.DB) error {
	return txn.Migrator().DropTable(
		&schema.RequestColumn{}, &schema.RequestTable{}, &schema.Request{},
		&schema.WorkspaceGrant{}, &schema.Workspace{}, &schema.User{},
	)
}
