package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/repository"
)

// UserSummary is the public face of a directory account referenced from a lead.
type UserSummary struct {
	ID    string
	Name  string
	Email string
}

// LeadDetails is a lead with its referenced accounts resolved.
type LeadDetails struct {
	Lead        domain.Lead
	Owner       *UserSummary
	QualifiedBy *UserSummary
	Client      *UserSummary
}

// ClientAccount is a client returned to an administrator. OneTimePassword is only set on
// the response that created the account.
type ClientAccount struct {
	User            *domain.User
	OneTimePassword string
}

// QualificationResult is returned by every status change.
type QualificationResult struct {
	Lead     *LeadDetails
	Client   *ClientAccount
	Warnings []string
}

func summarize(user *domain.User) *UserSummary {
	return &UserSummary{ID: user.ID, Name: user.Name, Email: user.Email}
}

// populateLead resolves owner, qualifier and client concurrently. Missing references are
// left nil.
func populateLead(ctx context.Context, users repository.UserRepository, logger *zap.Logger, lead *domain.Lead) *LeadDetails {
	details := &LeadDetails{Lead: *lead}

	var g errgroup.Group
	resolve := func(id *string, dst **UserSummary) {
		if id == nil || *id == "" {
			return
		}
		g.Go(func() error {
			user, err := users.GetByID(ctx, *id)
			if err != nil {
				logger.Debug("lead reference not resolved",
					zap.String("lead_id", lead.ID),
					zap.String("user_id", *id),
					zap.Error(err))
				return nil
			}
			*dst = summarize(user)
			return nil
		})
	}
	resolve(&lead.CreatedBy, &details.Owner)
	resolve(lead.QualifiedBy, &details.QualifiedBy)
	resolve(lead.ClientID, &details.Client)
	_ = g.Wait()

	return details
}
