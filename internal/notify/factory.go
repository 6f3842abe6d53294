package notify

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
	"storefront-checkout/internal/config"
)

// FromConfig picks a Sender by driver name: "smtp", "sqs" or "log".
func FromConfig(ctx context.Context, cfg config.NotifyConfig, logger *zap.SugaredLogger) (Sender, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogSender(logger), nil
	case "smtp":
		return NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, logger), nil
	case "sqs":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("notify driver sqs requires NOTIFY_QUEUE_URL")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewQueuePublisher(sqs.NewFromConfig(awsCfg), cfg.QueueURL), nil
	}
	return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
}
