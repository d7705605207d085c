package model

import (
	"fmt"
	"math"
	"time"
)

// costSumTolerance is the rounding slack allowed between the per-service
// costs and the reported total.
const costSumTolerance = 0.01

// Period is the time range a cost analysis covers.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CostAnalysis is a snapshot of cloud spending pulled from the cost backend.
type CostAnalysis struct {
	TotalUSD            float64            `json:"total_usd"`
	ServiceCosts        map[string]float64 `json:"service_costs"`
	Period              Period             `json:"period"`
	ProjectedMonthlyUSD float64            `json:"projected_monthly_usd"`
	Currency            string             `json:"currency"`
	LastUpdated         time.Time          `json:"last_updated"`
}

// Validate checks structural invariants: a present period, non-negative
// costs, and per-service costs summing to the total within tolerance.
func (c *CostAnalysis) Validate() error {
	if c.Period.Start.IsZero() || c.Period.End.IsZero() {
		return NewValidationError("cost analysis is missing its period")
	}
	if !c.Period.Start.Before(c.Period.End) {
		return NewValidationError("cost analysis period start must precede end")
	}
	if c.TotalUSD < 0 {
		return NewValidationError("total cost is negative")
	}

	var sum float64
	for service, cost := range c.ServiceCosts {
		if cost < 0 {
			return NewValidationError(fmt.Sprintf("service %q has negative cost", service))
		}
		sum += cost
	}
	if len(c.ServiceCosts) > 0 && math.Abs(sum-c.TotalUSD) > costSumTolerance {
		return NewValidationError(fmt.Sprintf(
			"service costs sum to $%.4f but total is $%.4f", sum, c.TotalUSD))
	}
	return nil
}

// AlertLevel classifies a threshold breach.
type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"  // Spend above threshold
	LevelCritical AlertLevel = "critical" // Spend more than 50% over threshold
)

// ServiceCost is one ranked entry in an alert's top-services list.
type ServiceCost struct {
	Service    string  `json:"service"`
	CostUSD    float64 `json:"cost_usd"`
	Percentage float64 `json:"percentage"`
}

// AlertContext is the derived alert decision for a single evaluation.
// It is never persisted.
type AlertContext struct {
	ThresholdUSD   float64       `json:"threshold_usd"`
	ExceedAmount   float64       `json:"exceed_amount"`
	PercentageOver float64       `json:"percentage_over"`
	TopServices    []ServiceCost `json:"top_services"`
	Level          AlertLevel    `json:"level"`
}

// DeviceRegistration binds a push device token to a platform endpoint.
type DeviceRegistration struct {
	DeviceToken  string    `json:"device_token" db:"device_token"`
	EndpointRef  string    `json:"endpoint_ref" db:"endpoint_ref"`
	OwnerID      string    `json:"owner_id,omitempty" db:"owner_id"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
	LastUpdated  time.Time `json:"last_updated" db:"last_updated"`
	Active       bool      `json:"active" db:"active"`
}

// AIAnalysisResult is the enrichment gateway's structured analysis of a
// cost breakdown. A fallback result carries ModelUsed == "fallback" and a
// fixed confidence score.
type AIAnalysisResult struct {
	Summary          string    `json:"summary"`
	ConfidenceScore  float64   `json:"confidence_score"`
	KeyInsights      []string  `json:"key_insights"`
	ModelUsed        string    `json:"model_used"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	Timestamp        time.Time `json:"timestamp"`
}

// AnomalySeverity grades how far a service deviates from its history.
type AnomalySeverity string

const (
	SeverityLow    AnomalySeverity = "low"
	SeverityMedium AnomalySeverity = "medium"
	SeverityHigh   AnomalySeverity = "high"
)

// Anomaly flags one service whose current cost deviates from historical values.
type Anomaly struct {
	Service      string          `json:"service"`
	CurrentUSD   float64         `json:"current_usd"`
	ExpectedUSD  float64         `json:"expected_usd"`
	DeviationPct float64         `json:"deviation_pct"`
	Severity     AnomalySeverity `json:"severity"`
	Confidence   float64         `json:"confidence"`
}

// AnomalyResult is the outcome of an anomaly-detection pass.
type AnomalyResult struct {
	Anomalies []Anomaly `json:"anomalies"`
	ModelUsed string    `json:"model_used"`
}

// RecommendationCategory is the fixed set of optimization categories.
type RecommendationCategory string

const (
	CategoryRightsizing  RecommendationCategory = "rightsizing"
	CategoryCommitment   RecommendationCategory = "commitment"
	CategoryCleanup      RecommendationCategory = "cleanup"
	CategoryScheduling   RecommendationCategory = "scheduling"
	CategoryStorageClass RecommendationCategory = "storage_class"
)

// ValidCategory reports whether c is one of the enumerated categories.
func ValidCategory(c RecommendationCategory) bool {
	switch c {
	case CategoryRightsizing, CategoryCommitment, CategoryCleanup,
		CategoryScheduling, CategoryStorageClass:
		return true
	}
	return false
}

// Recommendation is one cost-optimization suggestion.
type Recommendation struct {
	Category            RecommendationCategory `json:"category"`
	Service             string                 `json:"service"`
	Priority            string                 `json:"priority"`
	Complexity          string                 `json:"complexity"`
	EstimatedSavingsUSD float64                `json:"estimated_savings_usd,omitempty"`
	Rationale           string                 `json:"rationale"`
}

// Channel identifies a delivery channel in a DeliveryResult.
type Channel string

const (
	ChannelBroadcast Channel = "broadcast"
	ChannelDevice    Channel = "device"
)

// DeliveryResult records the outcome of one send attempt on one channel.
type DeliveryResult struct {
	Channel  Channel       `json:"channel"`
	Target   string        `json:"target"`
	Success  bool          `json:"success"`
	Err      string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// OverallSuccess applies the dispatch success policy: the broadcast channel
// must have been attempted and at least one broadcast send must have
// succeeded; device send failures do not affect the outcome. With
// requireAllDevices set, every device send must also have succeeded.
func OverallSuccess(results []DeliveryResult, requireAllDevices bool) bool {
	broadcastOK := false
	broadcastAttempted := false
	devicesOK := true
	for _, r := range results {
		switch r.Channel {
		case ChannelBroadcast:
			broadcastAttempted = true
			if r.Success {
				broadcastOK = true
			}
		case ChannelDevice:
			if !r.Success {
				devicesOK = false
			}
		}
	}
	if !broadcastAttempted || !broadcastOK {
		return false
	}
	if requireAllDevices && !devicesOK {
		return false
	}
	return true
}

// BillingPeriod returns the identifier and bounds of the monthly billing
// period containing t, used to scope the enrichment cost cap.
func BillingPeriod(t time.Time) (id string, start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start.Format("2006-01"), start, end
}
