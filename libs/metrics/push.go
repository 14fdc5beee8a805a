package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends the default registry to a Prometheus Pushgateway. A single-shot
// export never lives long enough to be scraped.
func Push(ctx context.Context, gatewayURL, job string, grouping map[string]string) error {
	pusher := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer)
	for k, v := range grouping {
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
