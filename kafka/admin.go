package kafka

type Topic struct {
	Name              string
	NumPartitions     int32
	ReplicationFactor int16
	ConfigEntries     map[string]string
}

type Admin interface {
	ListTopics() ([]string, error)
	CreateTopics(topics []*Topic) error
	Close()
}

// AdminBuilder creates an Admin client against the given brokers.
type AdminBuilder func(bootstrapServers []string) (Admin, error)
