// Package metrics publishes service telemetry to AWS CloudWatch: request
// counts and latency from the HTTP chassis, and terminal pipeline outcomes
// from the notification dispatcher.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"billgate/internal/gateway"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names.
const (
	MetricRequestCount   = "RequestCount"
	MetricRequestLatency = "RequestLatency"
	MetricOutcome        = "NotificationOutcome"

	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimState    = "State"
	DimGate     = "Gate"
)

// maxDatumsPerCall is the PutMetricData per-request datum limit.
const maxDatumsPerCall = 20

// publishTimeout bounds a threshold-triggered publish so a slow CloudWatch
// endpoint cannot stall request handling indefinitely.
const publishTimeout = 5 * time.Second

// CloudWatchCollector buffers metric datums and publishes them in batches:
// whenever the buffer reaches the per-call limit, and on Flush during
// shutdown. Publish failures are logged and the datums dropped; telemetry is
// never worth failing a request over.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

// NewCloudWatchCollector creates a collector publishing to the given
// namespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest records one handled HTTP request.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	now := time.Now().UTC()
	requestDims := []cwtypes.Dimension{
		{Name: aws.String(DimMethod), Value: aws.String(method)},
		{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(DimStatus), Value: aws.String(status)},
	}

	c.record(
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  aws.Time(now),
			Dimensions: requestDims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRequestLatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Timestamp:  aws.Time(now),
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
			},
		},
	)
}

// RecordOutcome records a terminal dispatcher state. The Gate dimension is
// present only for rejections.
func (c *CloudWatchCollector) RecordOutcome(state gateway.State, gate gateway.Gate) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimState), Value: aws.String(string(state))},
	}
	if gate != "" {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(DimGate),
			Value: aws.String(string(gate)),
		})
	}

	c.record(cwtypes.MetricDatum{
		MetricName: aws.String(MetricOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(time.Now().UTC()),
		Dimensions: dims,
	})
}

// Flush publishes everything still buffered. Called by the server chassis on
// shutdown.
func (c *CloudWatchCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	for len(batch) > 0 {
		n := len(batch)
		if n > maxDatumsPerCall {
			n = maxDatumsPerCall
		}
		if err := c.publish(ctx, batch[:n]); err != nil {
			return err
		}
		batch = batch[n:]
	}
	return nil
}

// record buffers datums and publishes a full batch when the buffer reaches
// the per-call limit.
func (c *CloudWatchCollector) record(datums ...cwtypes.MetricDatum) {
	c.mu.Lock()
	c.pending = append(c.pending, datums...)
	if len(c.pending) < maxDatumsPerCall {
		c.mu.Unlock()
		return
	}
	batch := c.pending[:maxDatumsPerCall]
	c.pending = c.pending[maxDatumsPerCall:]
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publish(ctx, batch); err != nil {
		c.logger.Error("failed to publish metrics batch",
			"namespace", c.namespace,
			"datums", len(batch),
			"error", err,
		)
	}
}

func (c *CloudWatchCollector) publish(ctx context.Context, batch []cwtypes.MetricDatum) error {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: batch,
	})
	return err
}

// NoopCollector discards all telemetry. Used when metrics are disabled and
// in tests.
type NoopCollector struct{}

func (NoopCollector) RecordRequest(string, string, string, time.Duration) {}

func (NoopCollector) RecordOutcome(gateway.State, gateway.Gate) {}
