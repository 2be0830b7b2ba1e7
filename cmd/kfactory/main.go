package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/gmbyapa/kfactory/factory"
	"github.com/gmbyapa/kfactory/kafka"
	saramaAdpt "github.com/gmbyapa/kfactory/kafka/adaptors/sarama"
	"github.com/gmbyapa/kfactory/lifecycle"
	"github.com/gmbyapa/kfactory/streams"
	"github.com/gmbyapa/kfactory/streams/encoding"
	"github.com/gmbyapa/kfactory/streams/topology"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
)

var (
	configFile = flag.String(`config`, `config.yaml`, `YAML config file, missing files are ignored`)
	envPrefix  = flag.String(`env-prefix`, `KFACTORY_`, `Environment variable prefix for config overrides`)
	seedCount  = flag.Int(`seed`, 0, `Number of fake sentences to produce to the text lines topic before starting`)
)

const (
	TopicTextLines  = `textlines`
	TopicWordCounts = `word-counts`
)

func main() {
	flag.Parse()

	conf, err := streams.LoadConfig(*configFile, *envPrefix)
	if err != nil {
		log.Fatal(err)
	}

	logger := log.Constructor.Log(log.WithLevel(logLevel(conf.String(streams.ConfLogLevel))))
	reporter := metrics.PrometheusReporter(metrics.ReporterConf{
		System:      `kfactory`,
		ConstLabels: map[string]string{`application_id`: conf.ApplicationId()},
	})

	builder := topology.NewBuilder()
	if err := buildTopology(builder); err != nil {
		logger.Fatal(err)
	}

	fct, err := factory.New(conf, builder, factory.WithLogger(logger), factory.WithMetricsReporter(reporter))
	if err != nil {
		logger.Fatal(err)
	}

	graph, err := fct.Describe()
	if err != nil {
		logger.Fatal(err)
	}
	logger.Debug(graph)

	if *seedCount > 0 {
		if err := seed(conf, logger, *seedCount); err != nil {
			logger.Fatal(err)
		}
	}

	manager := lifecycle.NewManager(logger)
	server := lifecycle.NewServer(conf.String(streams.ConfHttpAddress), manager,
		lifecycle.WithTopology(fct),
		lifecycle.WithEngineSource(fct),
		lifecycle.WithServerLogger(logger),
	)

	if err := manager.Register(`factory`, fct); err != nil {
		logger.Fatal(err)
	}

	if err := manager.Register(`http`, server); err != nil {
		logger.Fatal(err)
	}

	if err := manager.Start(context.Background()); err != nil {
		logger.Fatal(err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	// the drain timeout bounds the factory, the extra time covers the http server
	ctx, cancel := context.WithTimeout(context.Background(), conf.DrainTimeout()+5*time.Second)
	defer cancel()

	if err := manager.Stop(ctx); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func logLevel(level string) log.Level {
	switch strings.ToUpper(level) {
	case `TRACE`:
		return log.TRACE
	case `DEBUG`:
		return log.DEBUG
	case `WARN`:
		return log.WARN
	case `ERROR`:
		return log.ERROR
	case `FATAL`:
		return log.FATAL
	default:
		return log.INFO
	}
}

func buildTopology(builder *topology.Builder) error {
	if err := builder.AddSource(`lines`, TopicTextLines,
		topology.ConsumeWithKeyEncoder(encoding.StringEncoder{}),
		topology.ConsumeWithValEncoder(encoding.StringEncoder{}),
	); err != nil {
		return err
	}

	if err := builder.AddProcessor(`split`, topology.Supply(func(ctx topology.ProcessorContext, key, value interface{}) error {
		line, _ := value.(string)
		for _, word := range strings.Fields(line) {
			if err := ctx.Forward(strings.ToLower(word), word); err != nil {
				return err
			}
		}

		return nil
	}), `lines`); err != nil {
		return err
	}

	if err := builder.AddProcessor(`count`, topology.Supply(func(ctx topology.ProcessorContext, key, value interface{}) error {
		str, err := ctx.Store(`word-count`)
		if err != nil {
			return err
		}

		var count int
		previous, err := str.Get(ctx, key)
		if err != nil {
			return err
		}
		if previous != nil {
			count = previous.(int)
		}
		count++

		if err := str.Set(ctx, key, count, 0); err != nil {
			return err
		}

		return ctx.Forward(key, count)
	}), `split`); err != nil {
		return err
	}

	if err := builder.AddStore(`word-count`, encoding.StringEncoder{}, encoding.IntEncoder{}, `count`); err != nil {
		return err
	}

	return builder.AddSink(`counts`, TopicWordCounts, []string{`count`},
		topology.ProduceWithKeyEncoder(encoding.StringEncoder{}),
		topology.ProduceWithValEncoder(encoding.IntEncoder{}),
	)
}

func seed(conf *streams.Config, logger log.Logger, count int) error {
	admin, err := saramaAdpt.NewAdmin(conf.BootstrapServers(), saramaAdpt.WithLogger(logger))
	if err != nil {
		return err
	}
	defer admin.Close()

	if err := admin.CreateTopics([]*kafka.Topic{
		{Name: TopicTextLines, NumPartitions: 2, ReplicationFactor: 1},
		{Name: TopicWordCounts, NumPartitions: 2, ReplicationFactor: 1},
	}); err != nil {
		return err
	}

	pConf := kafka.NewProducerConfig()
	pConf.Id = `words-producer`
	pConf.BootstrapServers = conf.BootstrapServers()
	pConf.Version = conf.String(streams.ConfKafkaVersion)
	pConf.Logger = logger
	producer, err := saramaAdpt.NewProducer(pConf)
	if err != nil {
		return err
	}
	defer producer.Close()

	for i := 0; i < count; i++ {
		record := kafka.NewRecord(context.Background(), []byte(fmt.Sprint(i)), []byte(faker.Sentence()), kafka.RecordMeta{
			Topic:     TopicTextLines,
			Partition: kafka.PartitionAny,
			Timestamp: time.Now(),
		})

		if _, _, err := producer.ProduceSync(context.Background(), record); err != nil {
			return err
		}
	}

	logger.Info(fmt.Sprintf(`%d test records produced to %s`, count, TopicTextLines))

	return nil
}
