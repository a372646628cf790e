package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	defaultScrapeTimeout = 10 * time.Second
	maxScrapeBytes       = 4 << 20
)

// QueueDepth is the job queue state reported by a queue owner.
type QueueDepth struct {
	Pending int
	Active  int
}

// Queue scrapes a job queue's Prometheus metrics endpoint. The pending and
// active gauges are summed across all label sets, so a queue sharded by
// priority or tenant is reported as one total.
type Queue struct {
	endpoint      string
	pendingMetric string
	activeMetric  string
	client        *http.Client
}

// NewQueue returns a Queue reading pendingMetric and activeMetric from endpoint.
func NewQueue(endpoint, pendingMetric, activeMetric string) *Queue {
	return &Queue{
		endpoint:      endpoint,
		pendingMetric: pendingMetric,
		activeMetric:  activeMetric,
		client:        &http.Client{Timeout: defaultScrapeTimeout},
	}
}

// Depth fetches the endpoint and extracts the two gauges. Absent metrics read
// as zero.
func (q *Queue) Depth(ctx context.Context) (QueueDepth, error) {
	mfs, err := q.scrape(ctx)
	if err != nil {
		return QueueDepth{}, fmt.Errorf("queue scrape %q: %w", q.endpoint, err)
	}
	return QueueDepth{
		Pending: int(sumFamily(mfs[q.pendingMetric])),
		Active:  int(sumFamily(mfs[q.activeMetric])),
	}, nil
}

func (q *Queue) scrape(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return parseExposition(io.LimitReader(resp.Body, maxScrapeBytes))
}

// parseExposition decodes Prometheus text format. Families parsed before a
// syntax error are still returned.
func parseExposition(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return mfs, nil
}

// sumFamily totals the sample values of mf across label sets. A nil family
// (metric absent from the scrape) sums to zero.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	if total < 0 {
		return 0
	}
	return total
}
