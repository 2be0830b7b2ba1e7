package sarama

import (
	"context"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/gmbyapa/kfactory/kafka"
)

func TestProducer_ProduceSync(t *testing.T) {
	conf, err := producerConfig(kafka.NewProducerConfig())
	if err != nil {
		t.Fatal(err)
	}

	mock := mocks.NewSyncProducer(t, conf)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `value` {
			t.Errorf(`unexpected value %s`, val)
		}
		return nil
	})

	p := newProducer(mock, kafka.NewProducerConfig())
	record := kafka.NewRecord(context.Background(), []byte(`key`), []byte(`value`), kafka.RecordMeta{
		Topic:     `words`,
		Timestamp: time.Now(),
		Headers:   kafka.RecordHeaders{{Key: []byte(`h`), Value: []byte(`v`)}},
	})

	if _, _, err := p.ProduceSync(context.Background(), record); err != nil {
		t.Error(err)
	}

	if err := p.Close(); err != nil {
		t.Error(err)
	}
}

func TestProducer_ProduceSync_Error(t *testing.T) {
	conf, err := producerConfig(kafka.NewProducerConfig())
	if err != nil {
		t.Fatal(err)
	}

	mock := mocks.NewSyncProducer(t, conf)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newProducer(mock, kafka.NewProducerConfig())
	record := kafka.NewRecord(context.Background(), nil, []byte(`value`), kafka.RecordMeta{Topic: `words`})

	if _, _, err := p.ProduceSync(context.Background(), record); err == nil {
		t.Error(`expected produce error`)
	}

	if err := p.Close(); err != nil {
		t.Error(err)
	}
}

func TestProducerConfig_Idempotent(t *testing.T) {
	conf := kafka.NewProducerConfig()
	conf.Acks = kafka.WaitForLeader
	saramaConf, err := producerConfig(conf)
	if err != nil {
		t.Fatal(err)
	}

	if saramaConf.Producer.RequiredAcks != sarama.WaitForAll {
		t.Errorf(`idempotent producer must wait for all, have %v`, saramaConf.Producer.RequiredAcks)
	}

	if saramaConf.Net.MaxOpenRequests != 1 {
		t.Errorf(`expected MaxOpenRequests 1, have %d`, saramaConf.Net.MaxOpenRequests)
	}
}

func TestParseVersion_Invalid(t *testing.T) {
	if _, err := parseVersion(`not-a-version`); err == nil {
		t.Error(`expected version error`)
	}
}
