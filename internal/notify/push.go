package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushNotifier publishes events to one FCM topic per organization; client
// apps subscribe their devices to the topic of the member's organization.
type PushNotifier struct {
	client messageSender
}

// NewFirebasePush initializes a Firebase app. An empty credentialsFile falls
// back to application default credentials.
func NewFirebasePush(ctx context.Context, projectID, credentialsFile string) (*PushNotifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase messaging: %w", err)
	}
	return &PushNotifier{client: client}, nil
}

// Topic is the FCM topic of an organization.
func Topic(orgID string) string {
	return "org-" + orgID
}

func (n *PushNotifier) Listen(ctx context.Context, ev domain.Event) error {
	msg := Render(ev)
	data := make(map[string]string, len(ev.Payload)+3)
	for k, v := range ev.Payload {
		data[k] = v
	}
	data["event_id"] = ev.ID
	data["event_type"] = string(ev.Type)
	data["entity_id"] = ev.EntityID

	return deliverAll(ctx, Recipients(ev), func(ctx context.Context, orgID string) error {
		m := &messaging.Message{
			Topic:        Topic(orgID),
			Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
			Data:         data,
		}
		logger.ExternalServiceCall("fcm", "send", "topic", m.Topic, "event", ev.Type)
		id, err := n.client.Send(ctx, m)
		logger.ExternalServiceResult("fcm", "send", err, "message_id", id)
		if err != nil {
			if messaging.IsUnavailable(err) || messaging.IsInternal(err) || messaging.IsQuotaExceeded(err) {
				return &repository.TransientError{Op: "fcm send", Err: err}
			}
			return fmt.Errorf("fcm send to %s: %w", m.Topic, err)
		}
		return nil
	})
}
