package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Role decides which Pub/Sub resources a process depends on.
type Role int

const (
	// RoleProjector consumes the projector subscription.
	RoleProjector Role = iota
	// RolePublisher publishes to the cart events topic.
	RolePublisher
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

type resource struct {
	kind resourceKind
	name string
}

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	required  []resource
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient dials Pub/Sub and fails fast when a resource the role needs is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	required, err := requiredResources(role, cfg)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsFile); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	psClient, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: projectID, cfg: cfg, required: required}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "pubsub client initialized")
	}
	return c, nil
}

func requiredResources(role Role, cfg config.PubSubConfig) ([]resource, error) {
	var r resource
	switch role {
	case RoleProjector:
		r = resource{kind: kindSubscription, name: strings.TrimSpace(cfg.ProjectorSubscription)}
	case RolePublisher:
		r = resource{kind: kindTopic, name: strings.TrimSpace(cfg.CartEventsTopic)}
	default:
		return nil, fmt.Errorf("unknown pubsub role %d", role)
	}
	if r.name == "" {
		return nil, fmt.Errorf("pubsub %s name is required", strings.TrimSuffix(string(r.kind), "s"))
	}
	return []resource{r}, nil
}

// Ping verifies every resource the role depends on still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, r := range c.required {
		if err := c.exists(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) exists(ctx context.Context, r resource) error {
	full := resourceName(c.projectID, r.kind, r.name)
	var err error
	switch r.kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	case kindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", r.kind, full)
	default:
		return fmt.Errorf("checking pubsub %s %q: %w", r.kind, full, err)
	}
}

// Subscription returns a subscriber for an ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Subscriber(resourceName(c.projectID, kindSubscription, name))
}

// ProjectorSubscription returns the subscriber feeding the cart view projector.
func (c *Client) ProjectorSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.ProjectorSubscription)
}

// Publisher returns a publisher for an ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Publisher(resourceName(c.projectID, kindTopic, name))
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID into projects/<project>/<kind>/<id>. Names
// that are already fully qualified pass through untouched.
func resourceName(projectID string, kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, kind, n)
}
