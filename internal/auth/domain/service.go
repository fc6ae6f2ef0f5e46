package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type IssueRequest struct {
	UserID snowflake.ID
	OrgID  snowflake.ID
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*IssuedSession, error)
	Verify(ctx context.Context, token string) (*SessionClaims, error)
	Resolve(ctx context.Context, token string) (*Identity, error)
}
