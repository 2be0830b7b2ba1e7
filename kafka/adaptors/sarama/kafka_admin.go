/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package sarama

import (
	"fmt"
	"github.com/Shopify/sarama"
	"github.com/gmbyapa/kfactory/kafka"
	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/tryfix/log"
	"sync"
	"time"
)

type adminOptions struct {
	KafkaVersion sarama.KafkaVersion
	Logger       log.Logger
}

func (opts *adminOptions) apply(options ...AdminOption) {
	opts.KafkaVersion = sarama.V2_4_0_0
	opts.Logger = log.NewNoopLogger()
	for _, opt := range options {
		opt(opts)
	}
}

type AdminOption func(*adminOptions)

func WithKafkaVersion(version sarama.KafkaVersion) AdminOption {
	return func(options *adminOptions) {
		options.KafkaVersion = version
	}
}

func WithLogger(logger log.Logger) AdminOption {
	return func(options *adminOptions) {
		options.Logger = logger
	}
}

type kAdmin struct {
	admin  sarama.ClusterAdmin
	logger log.Logger
	mu     sync.Mutex
}

// AdminBuilder returns a kafka.AdminBuilder backed by a sarama ClusterAdmin.
func AdminBuilder(options ...AdminOption) kafka.AdminBuilder {
	return func(bootstrapServers []string) (kafka.Admin, error) {
		return NewAdmin(bootstrapServers, options...)
	}
}

func NewAdmin(bootstrapServer []string, options ...AdminOption) (kafka.Admin, error) {
	opts := new(adminOptions)
	opts.apply(options...)
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = opts.KafkaVersion
	saramaConfig.Admin.Timeout = 20 * time.Second
	admin, err := sarama.NewClusterAdmin(bootstrapServer, saramaConfig)
	if err != nil {
		return nil, errors.Wrap(err, `admin client failed`)
	}

	return newAdmin(admin, opts.Logger), nil
}

func newAdmin(admin sarama.ClusterAdmin, logger log.Logger) *kAdmin {
	return &kAdmin{
		admin:  admin,
		logger: logger.NewLog(log.Prefixed(`kafka-admin`)),
	}
}

func (a *kAdmin) ListTopics() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	topics, err := a.admin.ListTopics()
	if err != nil {
		return nil, errors.Wrap(err, `cannot get metadata`)
	}

	var tpList []string
	for tp := range topics {
		tpList = append(tpList, tp)
	}

	return tpList, nil
}

func (a *kAdmin) CreateTopics(topics []*kafka.Topic) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, info := range topics {
		details := &sarama.TopicDetail{
			NumPartitions:     info.NumPartitions,
			ReplicationFactor: info.ReplicationFactor,
			ConfigEntries:     map[string]*string{},
		}

		for cName := range info.ConfigEntries {
			conf := info.ConfigEntries[cName]
			details.ConfigEntries[cName] = &conf
		}

		err := a.admin.CreateTopic(info.Name, details, false)
		if err != nil {
			if e, ok := err.(*sarama.TopicError); ok && (e.Err == sarama.ErrTopicAlreadyExists || e.Err == sarama.ErrNoError) {
				a.logger.Warn(err)
				continue
			}
			return errors.Wrapf(err, `could not create topic [%s]`, info.Name)
		}

		a.logger.Info(fmt.Sprintf(`topic [%s] created`, info.Name))
	}

	return nil
}

func (a *kAdmin) Close() {
	if err := a.admin.Close(); err != nil {
		a.logger.Warn(fmt.Sprintf(`kafkaAdmin cannot close broker : %+v`, err))
	}
}
