// Package notify sends the completion email for an analyzed assessment.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/assessment-cli/internal/catalog"
	"github.com/sells-group/assessment-cli/internal/model"
)

var htmlBody = template.Must(template.New("completed").Parse(
	`<p>{{.Greeting}},</p><p>Your <strong>{{.TypeName}}</strong> assessment is ready.</p>` +
		`<p>Readiness level: {{.Readiness}}</p><p><a href="{{.Link}}">View your report</a></p>`))

// Notifier delivers the completion notice for an assessment.
type Notifier interface {
	NotifyCompleted(ctx context.Context, a *model.Assessment) error
}

// Message is a rendered completion email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Render builds the completion email for a. It returns false when the
// assessment has no contact address. User-supplied values are escaped in
// the HTML part.
func Render(a *model.Assessment, cat *catalog.Catalog, resultsURL string) (Message, bool) {
	to := a.Data.Email()
	if to == "" {
		return Message{}, false
	}
	if cat == nil {
		cat = catalog.Default()
	}
	// Casers are stateful; one per call.
	titler := cases.Title(language.English)

	typeName := titler.String(strings.ReplaceAll(cat.DisplayName(a.Type), "_", " "))

	greeting := "Hello"
	if name, _ := a.Data.PersonalInfo["firstName"].(string); strings.TrimSpace(name) != "" {
		greeting = "Hello " + titler.String(strings.TrimSpace(name))
	}

	link := strings.TrimRight(resultsURL, "/") + "/assessments/" + a.ID + "/results"
	readiness := titler.String(strings.ReplaceAll(string(a.Data.ReadinessLevel), "_", " "))

	text := fmt.Sprintf("%s,\n\nYour %s assessment is ready.\nReadiness level: %s\n\nView your report: %s\n",
		greeting, typeName, readiness, link)
	var html bytes.Buffer
	err := htmlBody.Execute(&html, struct {
		Greeting, TypeName, Readiness, Link string
	}{greeting, typeName, readiness, link})
	if err != nil {
		zap.L().Error("notify: render html", zap.String("assessment_id", a.ID), zap.Error(err))
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your %s results are ready", typeName),
		Text:    text,
		HTML:    html.String(),
	}, true
}

// LogNotifier writes the rendered email to the log instead of sending it.
type LogNotifier struct {
	catalog    *catalog.Catalog
	resultsURL string
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(cat *catalog.Catalog, resultsURL string) *LogNotifier {
	return &LogNotifier{catalog: cat, resultsURL: resultsURL}
}

func (n *LogNotifier) NotifyCompleted(_ context.Context, a *model.Assessment) error {
	msg, ok := Render(a, n.catalog, n.resultsURL)
	if !ok {
		zap.L().Info("notify: no contact address", zap.String("assessment_id", a.ID))
		return nil
	}
	zap.L().Info("notify: completion email",
		zap.String("assessment_id", a.ID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
