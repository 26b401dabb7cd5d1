//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	id "chatline/pkg/domain"
	audit "chatline/pkg/platform/audit"
	"chatline/pkg/platform/audit/store/kafka"
	"chatline/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	broker string
}

func TestKafkaSinkSuite(t *testing.T) {
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
}

func (s *KafkaSinkSuite) newClient(opts ...kgo.Opt) *kgo.Client {
	client, err := kgo.NewClient(append([]kgo.Opt{
		kgo.SeedBrokers(s.broker),
		kgo.AllowAutoTopicCreation(),
	}, opts...)...)
	s.Require().NoError(err)
	s.T().Cleanup(client.Close)
	return client
}

func (s *KafkaSinkSuite) TestEventsForOneRequestArriveInOrder() {
	topic := "contact-audit-" + id.NewRequestID().String()
	sink := kafka.New(s.newClient(), topic, nil)

	ctx := context.Background()
	reqID := id.NewRequestID()
	sender, recipient := id.NewUserID(), id.NewUserID()
	ts := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

	s.Require().NoError(sink.Append(ctx, audit.Event{
		Action:           audit.ActionRequestSent,
		Timestamp:        ts,
		ActorID:          sender,
		CounterpartID:    recipient,
		ContactRequestID: reqID,
	}))
	s.Require().NoError(sink.Append(ctx, audit.Event{
		Action:           audit.ActionRequestAccepted,
		Timestamp:        ts.Add(time.Minute),
		ActorID:          recipient,
		CounterpartID:    sender,
		ContactRequestID: reqID,
	}))

	consumer := s.newClient(
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	records := s.poll(consumer, 2)

	s.Equal(reqID.String(), string(records[0].Key))
	s.Equal(reqID.String(), string(records[1].Key))

	var first, second map[string]any
	s.Require().NoError(json.Unmarshal(records[0].Value, &first))
	s.Require().NoError(json.Unmarshal(records[1].Value, &second))
	s.Equal(string(audit.ActionRequestSent), first["action"])
	s.Equal(string(audit.ActionRequestAccepted), second["action"])
	s.Equal(recipient.String(), second["actor_id"])
}

func (s *KafkaSinkSuite) TestEnsureTopicIsIdempotent() {
	ctx := context.Background()
	client := s.newClient()
	topic := "contact-audit-ensure-" + id.NewRequestID().String()

	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 3, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 3, 1))

	details, err := kadm.NewClient(client).ListTopics(ctx, topic)
	s.Require().NoError(err)
	detail, ok := details[topic]
	s.Require().True(ok)
	s.Require().NoError(detail.Err)
	s.Len(detail.Partitions, 3)
}

func (s *KafkaSinkSuite) poll(client *kgo.Client, want int) []*kgo.Record {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < want {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			s.FailNowf("timed out waiting for records", "got %d of %d", len(records), want)
		}
		s.Require().Empty(fetches.Errors())
		records = append(records, fetches.Records()...)
	}
	return records
}
