package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"aetherflow/internal/connectearth"
	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
)

var errUpstream = errors.New("upstream unavailable")

// fakeCalculator prices a transaction at 1kg per dollar and reports monthly
// metrics by summing stored footprints per fine category.
type fakeCalculator struct {
	mu           sync.Mutex
	txCalls      int
	metricsCalls int
	failTx       error
	failMetrics  error
	block        chan struct{}
	started      chan struct{}
	inFlight     int
	maxInFlight  int
}

func (f *fakeCalculator) CalculateTransaction(_ context.Context, req connectearth.TransactionRequest) (*connectearth.TransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	if f.failTx != nil {
		return nil, f.failTx
	}
	kg := req.Price.Amount()
	return &connectearth.TransactionResult{
		KgCO2e:    kg,
		MtCO2e:    kg / 1000,
		SimilarTo: []string{"This is equivalent to the emissions from driving"},
	}, nil
}

func (f *fakeCalculator) CalculateMetrics(ctx context.Context, txns []core.Transaction) (*core.MetricsResult, error) {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.metricsCalls++
	fail := f.failMetrics
	f.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	res := &core.MetricsResult{TransactionCount: len(txns)}
	byCat := map[string]int{}
	for _, t := range txns {
		res.EmissionsTotal += t.KgCO2e
		idx, ok := byCat[string(t.Category)]
		if !ok {
			idx = len(res.Groups)
			byCat[string(t.Category)] = idx
			res.Groups = append(res.Groups, emissions.CategoryResult{Category: string(t.Category)})
		}
		res.Groups[idx].Emissions += t.KgCO2e
		res.Groups[idx].Count++
	}
	for i := range res.Groups {
		if res.EmissionsTotal > 0 {
			res.Groups[i].FractionOfTotal = res.Groups[i].Emissions / res.EmissionsTotal
		}
	}
	return res, nil
}

func (f *fakeCalculator) MetricsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metricsCalls
}

// MaxInFlight is the most CalculateMetrics calls seen running at once.
func (f *fakeCalculator) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

type publishedReload struct {
	owner  string
	reason string
	force  bool
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publishedReload
	err  error
}

func (p *fakePublisher) PublishReload(_ context.Context, ownerID, reason string, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, publishedReload{ownerID, reason, force})
	return nil
}

type fakeRecorder struct {
	mu           sync.Mutex
	rebuilds     map[string]int
	transactions []string
	published    []bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{rebuilds: map[string]int{}}
}

func (r *fakeRecorder) RebuildFinished(result string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuilds[result]++
}

func (r *fakeRecorder) TransactionRecorded(op, category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, op+":"+category)
}

func (r *fakeRecorder) ReloadPublished(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, ok)
}

var fixedNow = time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
