package module

import (
	"context"
	"math"
	"net/http"
	"text/template"
	"time"

	"github.com/c360/swaybar/netclient"
	"github.com/c360/swaybar/protocol"
)

// Poll fetches a value on a timer, from an HTTP JSON endpoint or a
// Prometheus instant or range query.
type Poll struct {
	base
	opts    PollOptions
	http    *netclient.Client
	prom    *netclient.Prometheus
	tmpl    *template.Template
	now     func() time.Time
	refresh chan struct{}
}

// pollView is what a poll module's format template sees
type pollView struct {
	Name    string
	Value   any
	Doc     any
	Labels  map[string]string
	Samples []netclient.Sample
	// Range polls only. Series holds every result; History is the first
	// series on the step grid, oldest first, with NaN where a point is
	// missing.
	Series  []netclient.Series
	History []float64
}

func newPoll(spec Spec, deps Deps) (*Poll, error) {
	opts := *spec.Poll
	if opts.Source == "" {
		opts.Source = SourceHTTP
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPollTimeout
	}
	if opts.Range > 0 && opts.Step <= 0 {
		opts.Step = DefaultRangeStep
	}

	tmpl, err := parseFormat(spec.Name, opts.Format)
	if err != nil {
		return nil, err
	}

	b, err := newBase(spec, deps)
	if err != nil {
		return nil, err
	}

	p := &Poll{
		base:    b,
		opts:    opts,
		http:    deps.HTTP,
		tmpl:    tmpl,
		now:     deps.Now,
		refresh: make(chan struct{}, 1),
	}
	if opts.Source == SourcePrometheus {
		prom, err := netclient.NewPrometheus(opts.Address, opts.Timeout, nil)
		if err != nil {
			return nil, err
		}
		p.prom = prom
	}
	return p, nil
}

// Run fetches immediately and then every interval. A failed fetch is
// retried on the backoff schedule instead of the interval.
func (p *Poll) Run(ctx context.Context, sink Sink) error {
	pol := p.newPolicy()

	for {
		view, err := p.fetch(ctx)
		if err != nil {
			if err := pol.failed(ctx, sink, err); err != nil {
				return stopErr(ctx, err)
			}
			continue
		}
		pol.succeeded()

		text, err := render(p.tmpl, view)
		if err != nil {
			p.logger.Warn("Format failed", "error", err)
			if err := p.emitError(ctx, sink, "format", err); err != nil {
				return nil
			}
		} else if err := p.emitText(ctx, sink, text, view, view.Value); err != nil {
			return nil
		}

		if !p.wait(ctx) {
			return nil
		}
	}
}

// wait sleeps until the next poll or a click-driven refresh
func (p *Poll) wait(ctx context.Context) bool {
	timer := time.NewTimer(p.opts.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-p.refresh:
		return true
	}
}

func (p *Poll) fetch(ctx context.Context) (pollView, error) {
	start := time.Now()
	view, err := p.fetchOnce(ctx)
	p.metrics.RecordFetch(p.key, time.Since(start), err)
	return view, err
}

func (p *Poll) fetchOnce(ctx context.Context) (pollView, error) {
	view := pollView{Name: p.name}

	if p.prom != nil && p.opts.Range > 0 {
		return p.fetchRange(ctx, view)
	}
	if p.prom != nil {
		samples, err := p.prom.Query(ctx, p.opts.Query)
		if err != nil {
			return view, err
		}
		view.Samples = samples
		if len(samples) > 0 {
			view.Value = samples[0].Value
			view.Labels = samples[0].Labels
		}
		return view, nil
	}

	method := p.opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var doc any
	err := p.http.FetchJSON(ctx, netclient.Request{
		Method:  method,
		URL:     p.opts.URL,
		Headers: copyHeaders(p.opts.Headers),
		Body:    []byte(p.opts.Body),
		Timeout: p.opts.Timeout,
	}, &doc)
	if err != nil {
		return view, err
	}
	value, err := netclient.ExtractField(doc, p.opts.Field)
	if err != nil {
		return view, err
	}
	view.Doc = doc
	view.Value = value
	return view, nil
}

func (p *Poll) fetchRange(ctx context.Context, view pollView) (pollView, error) {
	end := p.now()
	start := end.Add(-p.opts.Range)
	series, err := p.prom.QueryRange(ctx, p.opts.Query, start, end, p.opts.Step)
	if err != nil {
		return view, err
	}
	view.Series = series
	if len(series) == 0 {
		return view, nil
	}

	first := series[0]
	view.Labels = first.Labels
	view.History = onGrid(first.Points, start, p.opts.Step, int(p.opts.Range/p.opts.Step)+1)
	if n := len(first.Points); n > 0 {
		view.Value = first.Points[n-1].Value
	}
	return view, nil
}

// onGrid places points on n slots step apart from start. Slots no point
// lands on hold NaN.
func onGrid(points []netclient.Point, start time.Time, step time.Duration, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	for _, pt := range points {
		off := pt.Time.Sub(start)
		if off < 0 {
			continue
		}
		if i := int((off + step/2) / step); i < n {
			out[i] = pt.Value
		}
	}
	return out
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Click forces an immediate fetch when refresh_on_click is set
func (p *Poll) Click(_ context.Context, _ protocol.ClickEvent) error {
	if p.opts.RefreshOnClick {
		poke(p.refresh)
	}
	return nil
}
