package kafka

import (
	"fmt"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CreateTopicIfNotExists creates topic if it doesn't already exist,
// retrying the whole create-and-check sequence a few times since a
// freshly-started broker's controller can be briefly unreachable.
func CreateTopicIfNotExists(brokers []string, topic string, numPartitions int, replicationFactor int, log *zap.Logger) error {
	const maxRetries = 3
	const retryDelay = 2 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := createTopicWithRetry(brokers, topic, numPartitions, replicationFactor, log)
		if err == nil {
			log.Info("topic ready", zap.String("topic", topic))
			return nil
		}

		log.Warn("create topic attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", maxRetries), zap.Error(err))
		if attempt < maxRetries {
			time.Sleep(retryDelay)
		}
	}

	return fmt.Errorf("failed to create topic %q after %d attempts", topic, maxRetries)
}

func createTopicWithRetry(brokers []string, topic string, numPartitions int, replicationFactor int, log *zap.Logger) error {
	for _, broker := range brokers {
		conn, err := kafka.Dial("tcp", broker)
		if err != nil {
			log.Warn("failed to connect to broker", zap.String("broker", broker), zap.Error(err))
			continue
		}
		defer conn.Close()

		controller, err := conn.Controller()
		if err != nil {
			log.Warn("failed to get controller", zap.String("broker", broker), zap.Error(err))
			continue
		}

		controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
		if err != nil {
			log.Warn("failed to connect to controller", zap.Error(err))
			continue
		}
		defer controllerConn.Close()

		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     numPartitions,
			ReplicationFactor: replicationFactor,
		})
		if err != nil {
			if err.Error() == "Topic with this name already exists" {
				return nil
			}
			log.Warn("failed to create topic on controller", zap.Error(err))
			continue
		}
		return nil
	}

	return fmt.Errorf("failed to create topic %q on any broker", topic)
}
