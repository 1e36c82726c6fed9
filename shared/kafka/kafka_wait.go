package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// WaitForKafka blocks until at least one broker answers a metadata
// request or timeout elapses, so a process started alongside a
// not-yet-ready broker (common under container orchestration) doesn't
// spend its early retries failing topic creation and stream opens.
func WaitForKafka(brokers []string, timeout time.Duration, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for kafka to be ready")
		case <-ticker.C:
			if isKafkaReady(brokers) {
				log.Info("kafka is ready")
				return nil
			}
			log.Info("waiting for kafka to be ready")
		}
	}
}

func isKafkaReady(brokers []string) bool {
	for _, broker := range brokers {
		conn, err := kafka.Dial("tcp", broker)
		if err != nil {
			continue
		}
		_, err = conn.Brokers()
		conn.Close()
		if err == nil {
			return true
		}
	}
	return false
}
