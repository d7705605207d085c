package dispatch

import (
	"fmt"
	"strings"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// Sounds used by the push payload per alert level. Critical alerts get a
// dedicated sound so they cut through notification settings.
const (
	soundDefault  = "default"
	soundCritical = "critical-alert.caf"
)

// Enrichment bundles the optional AI-produced sections of an alert.
type Enrichment struct {
	Analysis        *model.AIAnalysisResult
	Anomalies       *model.AnomalyResult
	Recommendations []model.Recommendation
}

// FormatMessage renders the human-readable broadcast summary.
func FormatMessage(analysis *model.CostAnalysis, alertCtx *model.AlertContext, enrich *Enrichment) string {
	var b strings.Builder

	if alertCtx.Level == model.LevelCritical {
		b.WriteString("CRITICAL cloud spend alert\n")
	} else {
		b.WriteString("Cloud spend alert\n")
	}
	fmt.Fprintf(&b, "Total spend: $%.2f %s (threshold $%.2f, %.1f%% over)\n",
		analysis.TotalUSD, analysis.Currency, alertCtx.ThresholdUSD, alertCtx.PercentageOver)
	fmt.Fprintf(&b, "Over budget by: $%.2f\n", alertCtx.ExceedAmount)
	if analysis.ProjectedMonthlyUSD > 0 {
		fmt.Fprintf(&b, "Projected monthly: $%.2f\n", analysis.ProjectedMonthlyUSD)
	}

	if len(alertCtx.TopServices) > 0 {
		b.WriteString("\nTop services:\n")
		for i, svc := range alertCtx.TopServices {
			fmt.Fprintf(&b, "  %d. %s: $%.2f (%.1f%%)\n", i+1, svc.Service, svc.CostUSD, svc.Percentage)
		}
	}

	if enrich != nil && enrich.Analysis != nil {
		a := enrich.Analysis
		b.WriteString("\nAI Analysis")
		fmt.Fprintf(&b, " (confidence %.2f):\n", a.ConfidenceScore)
		b.WriteString(a.Summary)
		b.WriteString("\n")
		for _, insight := range a.KeyInsights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}

	if enrich != nil && enrich.Anomalies != nil && len(enrich.Anomalies.Anomalies) > 0 {
		b.WriteString("\nAnomalies:\n")
		for _, an := range enrich.Anomalies.Anomalies {
			fmt.Fprintf(&b, "- %s: $%.2f vs expected $%.2f (%+.1f%%, %s)\n",
				an.Service, an.CurrentUSD, an.ExpectedUSD, an.DeviationPct, an.Severity)
		}
	}

	if enrich != nil && len(enrich.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range enrich.Recommendations {
			fmt.Fprintf(&b, "- [%s] %s: %s", rec.Category, rec.Service, rec.Rationale)
			if rec.EstimatedSavingsUSD > 0 {
				fmt.Fprintf(&b, " (est. savings $%.2f/mo)", rec.EstimatedSavingsUSD)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// FormatPushPayload builds the per-device notification. Title, body, and
// sound vary by alert level; custom data always carries the four numeric
// fields plus the alert ID. The serialized payload is size-checked by
// NotificationPayload.Marshal before any send.
func FormatPushPayload(analysis *model.CostAnalysis, alertCtx *model.AlertContext, alertID string) *model.NotificationPayload {
	topService := ""
	if len(alertCtx.TopServices) > 0 {
		topService = alertCtx.TopServices[0].Service
	}

	payload := &model.NotificationPayload{
		APS: model.APS{
			Alert: model.APSAlert{
				Title: "Cloud Spend Alert",
				Body: fmt.Sprintf("Spending is $%.2f, $%.2f over your $%.2f threshold",
					analysis.TotalUSD, alertCtx.ExceedAmount, alertCtx.ThresholdUSD),
			},
			Badge:            1,
			Sound:            soundDefault,
			ContentAvailable: 1,
		},
		CustomData: model.PayloadCustomData{
			SpendAmount:  analysis.TotalUSD,
			Threshold:    alertCtx.ThresholdUSD,
			ExceedAmount: alertCtx.ExceedAmount,
			TopService:   topService,
			AlertID:      alertID,
		},
	}

	if alertCtx.Level == model.LevelCritical {
		payload.APS.Alert.Title = "Critical Cloud Spend Alert"
		payload.APS.Alert.Subtitle = fmt.Sprintf("%.0f%% over budget", alertCtx.PercentageOver)
		payload.APS.Sound = soundCritical
	}

	return payload
}
