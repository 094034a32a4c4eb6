package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

func testEvent() Event {
	now := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	a := domain.NewArticle("https://www.aibase.com/zh/news/1", domain.SourceAIBase, now)
	a.Title = "one"
	a.Complete("summary one", now)
	return NewBriefingEvent(domain.NewBriefing("2025-01-13", domain.BriefingTitle("", "2025-01-13"), []domain.Article{a}, "overview", now))
}

type fakeSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-123")}, nil
}

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-456")}, nil
}

func decodeEnvelope(t *testing.T, body string) Event {
	t.Helper()
	var evt Event
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return evt
}

func TestSQSPublisherSendsEnvelope(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{id: "queue", queueURL: "https://example.com/queue", client: client, log: noopLogger{}}

	if err := pub.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := aws.ToString(client.input.QueueUrl); got != "https://example.com/queue" {
		t.Fatalf("QueueUrl = %s", got)
	}
	attr, ok := client.input.MessageAttributes["briefing_date"]
	if !ok || aws.ToString(attr.StringValue) != "2025-01-13" || aws.ToString(attr.DataType) != "String" {
		t.Fatalf("briefing_date attribute wrong: %#v", attr)
	}
	evt := decodeEnvelope(t, aws.ToString(client.input.MessageBody))
	if evt.Type != EventDailyBriefing || evt.Data.TotalCount != 1 || evt.Data.Articles[0].Summary != "summary one" {
		t.Fatalf("unexpected envelope %#v", evt)
	}
}

func TestSQSPublisherReturnsClientError(t *testing.T) {
	pub := &sqsPublisher{id: "queue", queueURL: "q", client: &fakeSQSClient{err: errors.New("boom")}, log: noopLogger{}}
	if err := pub.Publish(context.Background(), testEvent()); err == nil {
		t.Fatalf("expected error from Publish")
	}
}

func TestSNSPublisherSendsEnvelope(t *testing.T) {
	client := &fakeSNSClient{}
	pub := &snsPublisher{id: "topic", topicARN: "arn:aws:sns:us-east-1:1:briefings", client: client, log: noopLogger{}}

	if err := pub.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := aws.ToString(client.input.TopicArn); got != "arn:aws:sns:us-east-1:1:briefings" {
		t.Fatalf("TopicArn = %s", got)
	}
	if got := aws.ToString(client.input.Subject); got != "Daily Briefing - 2025-01-13" {
		t.Fatalf("Subject = %q", got)
	}
	attr := client.input.MessageAttributes["event_type"]
	if aws.ToString(attr.StringValue) != EventDailyBriefing {
		t.Fatalf("event_type attribute wrong: %#v", attr)
	}
	if evt := decodeEnvelope(t, aws.ToString(client.input.Message)); evt.Data.Date != "2025-01-13" {
		t.Fatalf("unexpected envelope %#v", evt)
	}
}

func TestSNSPublisherReturnsClientError(t *testing.T) {
	pub := &snsPublisher{id: "topic", topicARN: "arn", client: &fakeSNSClient{err: errors.New("boom")}, log: noopLogger{}}
	if err := pub.Publish(context.Background(), testEvent()); err == nil {
		t.Fatalf("expected error from Publish")
	}
}

func TestSubjectFallsBackAndTruncates(t *testing.T) {
	if got := subject(Event{Type: EventDailyBriefing}); got != EventDailyBriefing {
		t.Fatalf("subject = %q", got)
	}
	long := Event{Data: domain.Briefing{Title: string(make([]rune, 150))}}
	if got := []rune(subject(long)); len(got) != 100 {
		t.Fatalf("subject length = %d", len(got))
	}
}

func TestNewSQSPublisherWithStaticCredentials(t *testing.T) {
	pub, err := newSQSPublisher(context.Background(), PublisherConfig{
		ID:   "queue",
		Type: TypeSQS,
		SQS: &SQSPublisherConfig{
			QueueURL:    "http://localhost:4566/000000000000/briefings",
			Region:      "us-east-1",
			Endpoint:    "http://localhost:4566",
			Credentials: &AWSCredentials{AccessKeyID: "test", SecretAccessKey: "test"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("newSQSPublisher: %v", err)
	}
	if pub.ID() != "queue" || pub.Type() != TypeSQS {
		t.Fatalf("unexpected publisher %s/%s", pub.ID(), pub.Type())
	}
}
