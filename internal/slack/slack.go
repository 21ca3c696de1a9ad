// Package slack posts formatted health reports to a Slack incoming webhook.
// Delivery failures are reported as errors for the caller to log or map to a
// boolean; they never panic or abort a request.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/models"
)

type block = map[string]interface{}

// Notifier sends Block Kit messages to the configured webhook.
type Notifier struct {
	webhookURL string
	httpc      *http.Client
	logger     zerolog.Logger
}

func New(webhookURL string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpc:      &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "slack_notifier").Logger(),
	}
}

// Configured reports whether a webhook URL is set.
func (n *Notifier) Configured() bool {
	return n.webhookURL != ""
}

// SendHealthSummary posts the domain health report, with the optional
// analysis section when one is supplied.
func (n *Notifier) SendHealthSummary(ctx context.Context, domains []models.DomainHealth, timeRange models.TimeRange, dashboardURL string, analysis *models.FailureAnalysis) error {
	if !n.Configured() {
		return errors.New("slack webhook URL not configured")
	}
	message := buildHealthMessage(domains, timeRange, dashboardURL, analysis)
	return n.post(ctx, message)
}

// SendTest posts a plain connectivity-check message.
func (n *Notifier) SendTest(ctx context.Context) error {
	if !n.Configured() {
		return errors.New("slack webhook URL not configured")
	}
	return n.post(ctx, map[string]interface{}{
		"text": "Health dashboard test message: webhook is working.",
	})
}

func (n *Notifier) post(ctx context.Context, message map[string]interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "marshal slack message")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "post to slack webhook")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, string(body))
	}
	n.logger.Info().Msg("slack notification sent")
	return nil
}

func buildHealthMessage(domains []models.DomainHealth, timeRange models.TimeRange, dashboardURL string, analysis *models.FailureAnalysis) map[string]interface{} {
	var totalDags, totalFailures, totalSuccess int
	for _, d := range domains {
		totalDags += d.TotalDags
		totalFailures += d.FailedCount
		totalSuccess += d.SuccessCount
	}
	overallHealth := 100.0
	if totalSuccess+totalFailures > 0 {
		overallHealth = float64(totalSuccess) / float64(totalSuccess+totalFailures) * 100
	}

	sorted := make([]models.DomainHealth, len(domains))
	copy(sorted, domains)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FailedCount != sorted[j].FailedCount {
			return sorted[i].FailedCount > sorted[j].FailedCount
		}
		return sorted[i].Domain < sorted[j].Domain
	})

	blocks := []block{
		{
			"type": "header",
			"text": block{
				"type": "plain_text",
				"text": fmt.Sprintf("%s Workflow Health Report", statusEmoji(overallHealth, totalFailures)),
			},
		},
		{
			"type": "section",
			"text": block{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Window:* last %s\n*Workflows:* %d\n*Overall health:* %.1f%%\n*Failed runs:* %d",
					timeRange, totalDags, overallHealth, totalFailures),
			},
		},
		{"type": "divider"},
	}

	for _, d := range sorted {
		blocks = append(blocks, block{
			"type": "section",
			"text": block{
				"type": "mrkdwn",
				"text": fmt.Sprintf("%s *%s* — %d workflows, %.1f%% healthy, %d failed runs",
					statusEmoji(d.HealthScore, d.FailedCount), d.Domain, d.TotalDags, d.HealthScore, d.FailedCount),
			},
		})
	}

	if analysis != nil && analysis.Summary != "" {
		blocks = append(blocks,
			block{"type": "divider"},
			block{
				"type": "section",
				"text": block{
					"type": "mrkdwn",
					"text": "*Failure analysis:*\n" + analysis.Summary,
				},
			},
		)
		for _, item := range analysis.ActionItems {
			blocks = append(blocks, block{
				"type": "section",
				"text": block{
					"type": "mrkdwn",
					"text": fmt.Sprintf("• [%s] *%s* — %s", item.Priority, item.Title, item.Description),
				},
			})
		}
	}

	if dashboardURL != "" {
		blocks = append(blocks, block{
			"type": "context",
			"elements": []block{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("<%s|Open the dashboard> • generated %s",
						dashboardURL, time.Now().UTC().Format("2006-01-02 15:04 UTC")),
				},
			},
		})
	}

	return map[string]interface{}{"blocks": blocks}
}

func statusEmoji(health float64, failures int) string {
	switch {
	case failures == 0 && health >= 95:
		return "🟢"
	case health >= 80:
		return "🟡"
	default:
		return "🔴"
	}
}
