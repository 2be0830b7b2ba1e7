package sarama

import (
	"github.com/Shopify/sarama"
	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/pkg/errors"
)

func parseVersion(version string) (sarama.KafkaVersion, error) {
	if version == `` {
		return sarama.V2_4_0_0, nil
	}

	v, err := sarama.ParseKafkaVersion(version)
	if err != nil {
		return v, errors.Wrapf(err, `invalid kafka version [%s]`, version)
	}

	return v, nil
}

func producerConfig(conf *kafka.ProducerConfig) (*sarama.Config, error) {
	version, err := parseVersion(conf.Version)
	if err != nil {
		return nil, err
	}

	saramaConf := sarama.NewConfig()
	saramaConf.Version = version
	saramaConf.ClientID = conf.Id
	saramaConf.Producer.RequiredAcks = sarama.RequiredAcks(conf.Acks)
	saramaConf.Producer.Return.Successes = true
	saramaConf.Producer.Return.Errors = true
	saramaConf.Producer.Partitioner = sarama.NewHashPartitioner
	if conf.Idempotent {
		saramaConf.Producer.Idempotent = true
		saramaConf.Producer.RequiredAcks = sarama.WaitForAll
		saramaConf.Net.MaxOpenRequests = 1
	}

	return saramaConf, nil
}

func groupConsumerConfig(conf *kafka.GroupConsumerConfig) (*sarama.Config, error) {
	version, err := parseVersion(conf.Version)
	if err != nil {
		return nil, err
	}

	saramaConf := sarama.NewConfig()
	saramaConf.Version = version
	saramaConf.ClientID = conf.Id
	saramaConf.Consumer.Return.Errors = true
	saramaConf.Consumer.Offsets.AutoCommit.Interval = conf.Offsets.Commit.Interval
	saramaConf.Consumer.Offsets.Initial = sarama.OffsetOldest
	if conf.Offsets.Initial == kafka.Latest {
		saramaConf.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	return saramaConf, nil
}
