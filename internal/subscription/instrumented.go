package subscription

import (
	"context"

	obsmetrics "github.com/smallbiznis/botquota/internal/observability/metrics"
)

type instrumentedChecker struct {
	name    string
	next    Checker
	metrics *obsmetrics.Metrics
}

// Instrument counts checks per result under the given checker name.
func Instrument(name string, next Checker, m *obsmetrics.Metrics) Checker {
	if m == nil {
		return next
	}
	return &instrumentedChecker{name: name, next: next, metrics: m}
}

func (c *instrumentedChecker) IsSubscribed(ctx context.Context, accountID int64) (bool, error) {
	ok, err := c.next.IsSubscribed(ctx, accountID)
	result := "unsubscribed"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "subscribed"
	}
	c.metrics.RecordSubscriptionCheck(ctx, c.name, result)
	return ok, err
}
