package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/rickgao/dxtrade-go/errs"
)

// driftEstimator tracks the offset between server Date headers and the
// local clock. Large drift means HMAC timestamps risk rejection, so it is
// surfaced as an error rather than silently recorded.
type driftEstimator struct {
	threshold time.Duration
	now       func() time.Time

	mu    sync.Mutex
	drift time.Duration
}

func newDriftEstimator(threshold time.Duration) *driftEstimator {
	return &driftEstimator{
		threshold: threshold,
		now:       time.Now,
	}
}

// observe records the offset from a response's Date header. Responses
// without a parseable Date header are ignored. An offset beyond the
// threshold is returned as a ClockDriftError.
func (d *driftEstimator) observe(header http.Header) error {
	dateValue := header.Get("Date")
	if dateValue == "" {
		return nil
	}
	serverTime, err := http.ParseTime(dateValue)
	if err != nil {
		return nil
	}

	drift := serverTime.Sub(d.now())
	d.mu.Lock()
	d.drift = drift
	d.mu.Unlock()

	if drift > d.threshold || drift < -d.threshold {
		return &errs.ClockDriftError{Drift: drift, Threshold: d.threshold}
	}
	return nil
}

func (d *driftEstimator) current() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drift
}
