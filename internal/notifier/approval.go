package notifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hikenity/internal/dto"
	"hikenity/internal/model"
)

const (
	approvalTitle = "New Certificate Pending Approval"

	maxParallelSends = 8
)

type AdminStore interface {
	ListAdmins(ctx context.Context) ([]model.Admin, error)
}

// ApprovalPending alerts every admin when an organiser uploads a new
// certificate.
type ApprovalPending struct {
	store AdminStore
	push  Dispatcher
	log   *zerolog.Logger
}

func NewApprovalPending(store AdminStore, push Dispatcher, log *zerolog.Logger) *ApprovalPending {
	return &ApprovalPending{store: store, push: push, log: log}
}

func (n *ApprovalPending) HandleChange(ctx context.Context, msg dto.ChangeMessage) error {
	before, err := dto.DecodeSnapshot[model.Organiser](msg.Before)
	if err != nil {
		return fmt.Errorf("decode before snapshot: %w", err)
	}
	after, err := dto.DecodeSnapshot[model.Organiser](msg.After)
	if err != nil {
		return fmt.Errorf("decode after snapshot: %w", err)
	}

	n.Handle(ctx, before, after)
	return nil
}

func (n *ApprovalPending) Handle(ctx context.Context, before, after *model.Organiser) {
	if before == nil || after == nil {
		n.log.Debug().Msg("organiser change without both snapshots, ignoring")
		return
	}
	if before.CertificateURL == after.CertificateURL {
		return
	}

	log := n.log.With().Str("organiser_id", after.ID).Logger()

	if after.CertificateURL == "" {
		log.Warn().Msg("certificate removed, nothing to approve")
		return
	}

	admins, err := n.store.ListAdmins(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list admins")
		return
	}
	if len(admins) == 0 {
		log.Info().Msg("no admins to notify")
		return
	}

	body := fmt.Sprintf("The organiser \"%s\" has uploaded a certificate for approval.", after.DisplayName())

	var g errgroup.Group
	g.SetLimit(maxParallelSends)
	notified := 0
	for _, a := range admins {
		if a.FCMToken == "" {
			log.Warn().Str("admin_id", a.ID).Msg("admin has no fcm token")
			continue
		}
		token := a.FCMToken
		notified++
		g.Go(func() error {
			n.push.Send(ctx, token, approvalTitle, body)
			return nil
		})
	}
	// Send reports nothing; Wait only joins the deliveries.
	_ = g.Wait()

	log.Info().Int("admins", len(admins)).Int("notified", notified).Msg("certificate approval notifications sent")
}
