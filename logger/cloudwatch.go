package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// putMetricDataLimit is the largest batch CloudWatch accepts per call.
const putMetricDataLimit = 1000

type cloudWatchSink struct {
	client    *cloudwatch.Client
	namespace string
	dashboard string
	region    string
}

var (
	cwMu   sync.RWMutex
	cwSink = cloudWatchSink{namespace: "CCGateway", dashboard: "CCGateway"}
)

// CloudWatchOptions selects where metrics are published. Static keys are
// optional; without them the default AWS credential chain is used.
type CloudWatchOptions struct {
	Region          string
	Namespace       string
	Dashboard       string
	AccessKeyID     string
	SecretAccessKey string
}

// InitCloudWatch initialises the CloudWatch client. An empty region falls back
// to AWS_REGION. When the client cannot be created publishing stays disabled.
func InitCloudWatch(ctx context.Context, o CloudWatchOptions) {
	log := GetLogger().WithComponent("cloudwatch")

	region, namespace, dashboard := o.Region, o.Namespace, o.Dashboard
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	cwMu.Lock()
	cwSink.client = cloudwatch.NewFromConfig(cfg)
	if namespace != "" {
		cwSink.namespace = namespace
	}
	if dashboard != "" {
		cwSink.dashboard = dashboard
	}
	cwSink.region = cfg.Region
	sink := cwSink
	cwMu.Unlock()

	log.WithFields(Fields{"region": sink.region, "namespace": sink.namespace}).Info("initialized CloudWatch client")

	if err := putDashboard(ctx, sink); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}

// CloudWatchEnabled reports whether InitCloudWatch produced a client.
func CloudWatchEnabled() bool {
	cwMu.RLock()
	defer cwMu.RUnlock()
	return cwSink.client != nil
}

// PublishMetrics sends the provided metric data to CloudWatch when the client
// has been initialised.
func PublishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	log := GetLogger().WithComponent("cloudwatch")

	cwMu.RLock()
	sink := cwSink
	cwMu.RUnlock()

	if sink.client == nil {
		return
	}
	if len(data) == 0 {
		log.Debug("no metric data to publish")
		return
	}

	for start := 0; start < len(data); start += putMetricDataLimit {
		end := min(start+putMetricDataLimit, len(data))
		if _, err := sink.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(sink.namespace),
			MetricData: data[start:end],
		}); err != nil {
			log.WithError(err).Warn("failed to publish CloudWatch metrics")
			return
		}
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		if datum.MetricName != nil {
			names = append(names, *datum.MetricName)
		}
	}

	log.WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
}

func dashboardBody(namespace, region string) string {
	widget := func(title string, metrics ...string) string {
		rows := make([]string, 0, len(metrics))
		for _, m := range metrics {
			rows = append(rows, fmt.Sprintf("[%q,%q]", namespace, m))
		}
		return fmt.Sprintf(`{"type":"metric","width":12,"height":6,"properties":{"metrics":[%s],"period":60,"stat":"Average","region":%q,"title":%q}}`,
			strings.Join(rows, ","), region, title)
	}
	return fmt.Sprintf(`{"widgets":[%s,%s,%s]}`,
		widget("Gateway System", "Gateway-CPUPercent", "Gateway-MemoryMB", "Gateway-Goroutines"),
		widget("Gateway Errors", "Gateway-Errors", "Gateway-Warns", "Gateway-RemoteFailures"),
		widget("Gateway Feed", "Gateway-FeedFrames", "Gateway-CandlesPublished", "used_weight"),
	)
}

func putDashboard(ctx context.Context, sink cloudWatchSink) error {
	if sink.client == nil {
		return nil
	}
	_, err := sink.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(sink.dashboard),
		DashboardBody: aws.String(dashboardBody(sink.namespace, sink.region)),
	})
	return err
}
