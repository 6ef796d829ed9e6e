package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

func CheckValidDecision(status string) error {
	if status != StatusApproved && status != StatusRejected {
		return fmt.Errorf("invalid review decision '%v', must be '%v' or '%v'", status, StatusApproved, StatusRejected)
	}
	return nil
}

// User rows mirror principals from the identity provider. They are created
// lazily when a data manager first acts, or explicitly via the user service.
type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FullName string `gorm:"size:512;not null"`
	Username string `gorm:"size:512;not null"`

	Grants []WorkspaceGrant `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
}

type Workspace struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"size:1024;not null"`

	Grants []WorkspaceGrant `gorm:"foreignKey:WorkspaceId;constraint:OnDelete:CASCADE"`
}

// WorkspaceGrant asserts that the user may view and request against the
// workspace. The grant set for a workspace is always replaced as a whole.
type WorkspaceGrant struct {
	WorkspaceId uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId      uuid.UUID `gorm:"type:uuid;primaryKey"`

	Workspace *Workspace `gorm:"constraint:OnDelete:CASCADE"`
	User      *User      `gorm:"constraint:OnDelete:CASCADE"`
}

type Request struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title     string    `gorm:"size:1024;not null"`
	Status    string    `gorm:"size:128;not null;default:'pending'"`
	CreatedOn time.Time `gorm:"not null"`

	Justification string `gorm:"not null"`
	Comment       *string

	WorkspaceId uuid.UUID `gorm:"type:uuid;not null"`
	Workspace   *Workspace

	CreatorId uuid.UUID `gorm:"type:uuid;not null"`
	Creator   *User     `gorm:"foreignKey:CreatorId"`

	ReviewerDecision *string    `gorm:"size:1024"`
	ReviewerId       *uuid.UUID `gorm:"type:uuid"`
	Reviewer         *User      `gorm:"foreignKey:ReviewerId"`
	ReviewedOn       *time.Time

	// Link to the provisioning pipeline run, set once on commit. Only
	// approved requests may carry a link.
	AdfLink *string `gorm:"size:1024"`

	Tables []RequestTable `gorm:"foreignKey:RequestId;constraint:OnDelete:CASCADE"`
}

type RequestTable struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TableName        string `gorm:"size:1024;not null"`
	TableDescription string
	WhereStatement   *string `gorm:"size:1024"`

	RequestId uuid.UUID `gorm:"type:uuid;not null"`

	Columns []RequestColumn `gorm:"foreignKey:TableId;constraint:OnDelete:CASCADE"`
}

type RequestColumn struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TableId uuid.UUID `gorm:"type:uuid;not null"`

	ColumnName        string `gorm:"size:1024;not null"`
	ColumnDescription string
}

func (r *Request) Reviewed() bool {
	return r.Status != StatusPending
}
