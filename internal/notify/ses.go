package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/catalog"
	"github.com/sells-group/assessment-cli/internal/model"
)

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends completion emails through Amazon SES.
type SESNotifier struct {
	client     SESAPI
	from       string
	resultsURL string
	catalog    *catalog.Catalog
}

// NewSESNotifier builds a notifier from the default AWS credential chain.
func NewSESNotifier(ctx context.Context, region, from, resultsURL string, cat *catalog.Catalog) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "notify: load aws config")
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), from, resultsURL, cat), nil
}

// NewSESNotifierWithClient wraps an existing SES client.
func NewSESNotifierWithClient(client SESAPI, from, resultsURL string, cat *catalog.Catalog) *SESNotifier {
	return &SESNotifier{client: client, from: from, resultsURL: resultsURL, catalog: cat}
}

func (n *SESNotifier) NotifyCompleted(ctx context.Context, a *model.Assessment) error {
	msg, ok := Render(a, n.catalog, n.resultsURL)
	if !ok {
		zap.L().Info("notify: no contact address", zap.String("assessment_id", a.ID))
		return nil
	}

	out, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(n.from),
	})
	if err != nil {
		return eris.Wrapf(err, "notify: send email for %s", a.ID)
	}

	zap.L().Info("notify: completion email sent",
		zap.String("assessment_id", a.ID),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}
