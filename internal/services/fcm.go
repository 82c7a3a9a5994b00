package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrTransportFailure wraps any push delivery failure. Callers log it and move on.
var ErrTransportFailure = errors.New("push delivery failed")

// PushMessage is the system-level notification shown by a backgrounded client
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// messagingClient is the part of *messaging.Client the service uses
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMService delivers push notifications through Firebase Cloud Messaging
type FCMService struct {
	client messagingClient
	logger *zap.Logger
}

// NewFCMService creates a new FCM service instance from a credentials file
func NewFCMService(ctx context.Context, credentialsFile string, logger *zap.Logger) (*FCMService, error) {
	return newFCMService(ctx, option.WithCredentialsFile(credentialsFile), logger)
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded credentials.
// Useful where a credentials file cannot be mounted (Railway, Fly.io, Render).
func NewFCMServiceFromBase64(ctx context.Context, credentialsBase64 string, logger *zap.Logger) (*FCMService, error) {
	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}
	return newFCMService(ctx, option.WithCredentialsJSON(credentialsJSON), logger)
}

func newFCMService(ctx context.Context, opt option.ClientOption, logger *zap.Logger) (*FCMService, error) {
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client, logger: logger}, nil
}

// Deliver sends msg to a single registration token. It makes one attempt.
func (s *FCMService) Deliver(ctx context.Context, endpoint string, msg PushMessage) error {
	message := &messaging.Message{
		Token: endpoint,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("%w: endpoint unregistered: %v", ErrTransportFailure, err)
		}
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	s.logger.Debug("FCM notification sent", zap.String("message_id", response), zap.String("type", msg.Data["type"]))
	return nil
}
