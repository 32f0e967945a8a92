package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
)

// maxMulticastTokens is the FCM limit for a single multicast request.
const maxMulticastTokens = 500

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SendEachForMulticastDryRun(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type memberLister interface {
	ListMemberIDs(ctx context.Context, cartID uuid.UUID) ([]uuid.UUID, error)
}

// FCMPusherParams groups the collaborators of FCMPusher.
type FCMPusherParams struct {
	Sender         multicastSender
	Members        memberLister
	Tokens         TokenRepository
	Logger         *logger.Logger
	DryRun         bool
	AndroidChannel string
}

// FCMPusher resolves a push audience to device tokens and sends one multicast per chunk.
type FCMPusher struct {
	sender         multicastSender
	members        memberLister
	tokens         TokenRepository
	logg           *logger.Logger
	dryRun         bool
	androidChannel string
}

func NewFCMPusher(params FCMPusherParams) (*FCMPusher, error) {
	if params.Sender == nil {
		return nil, fmt.Errorf("fcm sender required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("member lister required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &FCMPusher{
		sender:         params.Sender,
		members:        params.Members,
		tokens:         params.Tokens,
		logg:           params.Logger,
		dryRun:         params.DryRun,
		androidChannel: params.AndroidChannel,
	}, nil
}

// NewMessagingClient initialises the Firebase app and returns its messaging client.
func NewMessagingClient(ctx context.Context, gcp config.GCPConfig, push config.PushConfig) (*messaging.Client, error) {
	var opts []option.ClientOption
	credentials := strings.TrimSpace(push.CredentialsFile)
	if credentials == "" {
		credentials = strings.TrimSpace(gcp.CredentialsFile)
	}
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: gcp.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return client, nil
}

func (p *FCMPusher) Send(ctx context.Context, req PushRequest) Result {
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"cart_id":    req.CartID.String(),
		"version":    req.Version,
		"event_type": string(req.Context.EventType),
		"target":     string(req.Target),
	})

	audience, err := p.audience(ctx, req)
	if err != nil {
		p.logg.Error(logCtx, "failed to resolve push audience", err)
		return Failed(err.Error())
	}
	if len(audience) == 0 {
		p.logg.Debug(logCtx, "push audience empty")
		return Delivered()
	}

	rows, err := p.tokens.ListTokens(ctx, audience)
	if err != nil {
		p.logg.Error(logCtx, "failed to load device tokens", err)
		return Failed(err.Error())
	}
	tokens := uniqueTokens(rows)
	if len(tokens) == 0 {
		p.logg.Debug(logCtx, "no device tokens for audience")
		return Delivered()
	}

	message := p.buildMessage(req)
	var (
		delivered int
		stale     []string
		sendErr   error
	)
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		message.Tokens = tokens[start:end]
		resp, err := p.send(ctx, message)
		if err != nil {
			sendErr = multierr.Append(sendErr, err)
			continue
		}
		delivered += resp.SuccessCount
		for i, r := range resp.Responses {
			if r == nil || r.Success {
				continue
			}
			if messaging.IsUnregistered(r.Error) {
				stale = append(stale, message.Tokens[i])
				continue
			}
			sendErr = multierr.Append(sendErr, r.Error)
		}
	}

	if len(stale) > 0 {
		if err := p.tokens.DeleteTokens(ctx, stale); err != nil {
			p.logg.Warn(p.logg.WithField(logCtx, "error", err.Error()), "failed to prune stale device tokens")
		}
	}

	if sendErr != nil && delivered == 0 {
		p.logg.Error(logCtx, "push delivery failed", sendErr)
		return Failed(sendErr.Error())
	}
	if sendErr != nil {
		p.logg.Warn(p.logg.WithFields(logCtx, map[string]any{
			"delivered": delivered,
			"errors":    len(multierr.Errors(sendErr)),
		}), "push partially delivered")
	}
	return Delivered()
}

func (p *FCMPusher) send(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	if p.dryRun {
		return p.sender.SendEachForMulticastDryRun(ctx, message)
	}
	return p.sender.SendEachForMulticast(ctx, message)
}

func (p *FCMPusher) audience(ctx context.Context, req PushRequest) ([]uuid.UUID, error) {
	switch req.Target {
	case enums.PushTargetSpecific:
		if req.TargetUserID == uuid.Nil {
			return nil, errors.New("specific push target requires a user id")
		}
		return []uuid.UUID{req.TargetUserID}, nil
	case enums.PushTargetAll, enums.PushTargetMembers:
		members, err := p.members.ListMemberIDs(ctx, req.CartID)
		if err != nil {
			return nil, err
		}
		if req.Target == enums.PushTargetAll || req.Context.ActorID == uuid.Nil {
			return members, nil
		}
		filtered := make([]uuid.UUID, 0, len(members))
		for _, id := range members {
			if id != req.Context.ActorID {
				filtered = append(filtered, id)
			}
		}
		return filtered, nil
	default:
		return nil, fmt.Errorf("unsupported push target %q", req.Target)
	}
}

func (p *FCMPusher) buildMessage(req PushRequest) *messaging.MulticastMessage {
	message := &messaging.MulticastMessage{
		Data: dataPayload(req),
		Android: &messaging.AndroidConfig{
			Priority:    "high",
			CollapseKey: req.CartID.String(),
		},
	}
	if req.Mode.OrDefault() == enums.DeliveryDataOnly {
		message.APNS = &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-push-type": "background",
				"apns-priority":  "5",
			},
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{ContentAvailable: true}},
		}
		return message
	}

	title, body := renderText(req.Context)
	message.Notification = &messaging.Notification{Title: title, Body: body}
	message.Android.Notification = &messaging.AndroidNotification{
		ChannelID: p.androidChannel,
		Tag:       req.CartID.String(),
	}
	message.APNS = &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{Aps: &messaging.Aps{
			ThreadID:         req.CartID.String(),
			MutableContent:   true,
			ContentAvailable: true,
		}},
	}
	return message
}

func uniqueTokens(rows []models.DeviceToken) []string {
	seen := make(map[string]struct{}, len(rows))
	tokens := make([]string, 0, len(rows))
	for _, row := range rows {
		token := strings.TrimSpace(row.Token)
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}
