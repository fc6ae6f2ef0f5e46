package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ActionCreated = "created"
	ActionDeleted = "deleted"
)

// Installation is a GitHub App installation on a user or organization account.
type Installation struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	InstallationID int64         `gorm:"not null;uniqueIndex:ux_github_installations_installation" json:"installation_id"`
	AccountID      int64         `gorm:"not null" json:"account_id"`
	AccountLogin   string        `gorm:"type:text;not null" json:"account_login"`
	AccountType    string        `gorm:"type:text;not null;default:''" json:"account_type"`
	SenderID       int64         `gorm:"not null;default:0" json:"sender_id"`
	UserID         *snowflake.ID `gorm:"index" json:"user_id,omitempty"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null" json:"updated_at"`
}

func (Installation) TableName() string { return "github_installations" }

// Event is the subset of an installation webhook payload that is persisted.
type Event struct {
	Action       string `json:"action"`
	Installation struct {
		ID      int64 `json:"id"`
		Account struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"account"`
	} `json:"installation"`
	Sender struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	} `json:"sender"`
}

type Outcome string

const (
	OutcomeInstalled   Outcome = "installed"
	OutcomeUninstalled Outcome = "uninstalled"
	OutcomeIgnored     Outcome = "ignored"
)
