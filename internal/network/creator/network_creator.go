package creator

import (
	"github.com/6529-Collections/netflow/internal/network"
	"github.com/6529-Collections/netflow/internal/network/kafka"
	"github.com/6529-Collections/netflow/internal/network/noop"
	"go.uber.org/zap"
)

// GetNetworkTransport returns a Kafka publisher when brokers are configured
// and a no-op transport otherwise.
func GetNetworkTransport(brokers []string) network.NetworkTransport {
	if len(brokers) == 0 {
		zap.L().Info("No Kafka brokers configured, downstream publishing disabled")
		return noop.NewNoopTransport()
	}
	return kafka.NewKafkaTransport(brokers)
}
