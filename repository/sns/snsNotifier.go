package snsrepo

import (
	"context"
	"log/slog"

	"github.com/Kevall84/Smart-Library-Management-System-sub000/service/notify"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher is the slice of *sns.Client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	client Publisher
	topic  string
	log    *slog.Logger
}

func New(client Publisher, topic string, log *slog.Logger) *Notifier {
	return &Notifier{client: client, topic: topic, log: log}
}

// NewFromEnv loads the default AWS credential chain.
func NewFromEnv(ctx context.Context, topic string, log *slog.Logger) (*Notifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return New(sns.NewFromConfig(cfg), topic, log), nil
}

func (n *Notifier) Notify(ctx context.Context, userID int64, kind notify.Kind, payload map[string]any) {
	msg := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["user_id"] = userID
	msg["event_type"] = string(kind)

	b, err := json.Marshal(msg)
	if err != nil {
		n.log.ErrorContext(ctx, "notification marshal failed", "kind", kind, "err", err)
		return
	}
	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topic),
		Message:  aws.String(string(b)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(kind)),
			},
		},
	})
	if err != nil {
		n.log.WarnContext(ctx, "notification publish failed", "kind", kind, "user_id", userID, "err", err)
	}
}
