package module

import (
	"context"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/health"
	"github.com/c360/swaybar/metric"
	"github.com/c360/swaybar/netclient"
	"github.com/c360/swaybar/protocol"
	"github.com/c360/swaybar/testutil"
)

func newTestPoll(t *testing.T, d *delays, maxAttempts int, opts PollOptions) *Poll {
	t.Helper()

	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	m, err := New(Spec{Kind: KindPoll, Name: "weather", Poll: &opts}, testDeps(d, fastBackoff(maxAttempts)))
	require.NoError(t, err)
	return m.(*Poll)
}

func TestPollRecoversAfterTransientFailures(t *testing.T) {
	srv := testutil.NewJSONServer(t,
		testutil.Response{Status: http.StatusServiceUnavailable, Body: `{"error":"busy"}`},
		testutil.Response{Status: http.StatusServiceUnavailable, Body: `{"error":"busy"}`},
		testutil.Response{Status: http.StatusOK, Body: `{"value":"42"}`},
	)

	d := &delays{}
	p := newTestPoll(t, d, 10, PollOptions{URL: srv.URL, Field: "value"})
	sink := newSink()
	stop := runModule(t, p, sink)

	sink.WaitForLen(t, 1, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, stop())

	blocks := sink.Blocks()
	require.Len(t, blocks, 1, "failures below the backoff cap are not shown")
	assert.Equal(t, "42", blocks[0].FullText)
	assert.False(t, blocks[0].Urgent)

	got := d.all()
	require.Len(t, got, 2)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i], got[i-1], "delays never shrink while failing")
	}
	assert.Equal(t, 3, srv.Hits())
}

func TestPollShowsRetryingOnceSaturated(t *testing.T) {
	srv := testutil.NewJSONServer(t, testutil.Response{Status: http.StatusBadGateway})

	d := &delays{}
	p := newTestPoll(t, d, 0, PollOptions{URL: srv.URL})
	sink := newSink()
	runModule(t, p, sink)

	blocks := sink.WaitFor(t, 2*time.Second, hasUrgentPrefix("weather: retrying:"))
	for _, b := range blocks {
		assert.True(t, b.Urgent)
	}

	got := d.all()
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, 10*time.Millisecond, got[0])
	assert.Equal(t, 20*time.Millisecond, got[1])
	assert.Equal(t, 40*time.Millisecond, got[2])
}

func TestPollGivesUpAfterMaxAttempts(t *testing.T) {
	srv := testutil.NewJSONServer(t, testutil.Response{Status: http.StatusInternalServerError})

	d := &delays{}
	p := newTestPoll(t, d, 3, PollOptions{URL: srv.URL})
	sink := newSink()

	err := runToEnd(t, p, sink)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrMaxRetriesExceeded)

	last := sink.Last()
	assert.True(t, last.Urgent)
	assert.True(t, strings.HasPrefix(last.FullText, "weather: error:"), last.FullText)
	assert.Equal(t, 3, srv.Hits())
}

func TestPollReportsHealth(t *testing.T) {
	srv := testutil.NewJSONServer(t, testutil.Response{Status: http.StatusInternalServerError})

	monitor := health.NewMonitor()
	deps := testDeps(&delays{}, fastBackoff(3))
	deps.Health = monitor
	m, err := New(Spec{Kind: KindPoll, Name: "weather", Poll: &PollOptions{URL: srv.URL, Interval: time.Hour}}, deps)
	require.NoError(t, err)

	s, ok := monitor.Get("weather")
	require.True(t, ok, "modules register when built")
	assert.True(t, s.Healthy())

	require.Error(t, runToEnd(t, m, newSink()))

	s, _ = monitor.Get("weather")
	assert.Equal(t, health.StateUnhealthy, s.State)
	assert.NotContains(t, s.Message, "127.0.0.1")
	assert.Equal(t, health.StateUnhealthy, monitor.Report().State)
}

func TestPollInstancesReportSeparately(t *testing.T) {
	down := testutil.NewJSONServer(t, testutil.Response{Status: http.StatusInternalServerError})
	up := testutil.NewJSONServer(t, testutil.Response{Body: `{"temp":18}`})

	monitor := health.NewMonitor()
	core := metric.NewMetrics()
	deps := testDeps(&delays{}, fastBackoff(2))
	deps.Health = monitor
	deps.Metrics = core

	home, err := New(Spec{Kind: KindPoll, Name: "weather", Instance: "home",
		Poll: &PollOptions{URL: down.URL, Interval: time.Hour}}, deps)
	require.NoError(t, err)
	office, err := New(Spec{Kind: KindPoll, Name: "weather", Instance: "office",
		Poll: &PollOptions{URL: up.URL, Field: "temp", Interval: time.Hour}}, deps)
	require.NoError(t, err)

	require.Error(t, runToEnd(t, home, newSink()))
	sink := newSink()
	runModule(t, office, sink)
	sink.WaitFor(t, time.Second, hasText("18"))

	s, ok := monitor.Get("weather:home")
	require.True(t, ok)
	assert.Equal(t, health.StateUnhealthy, s.State)

	s, ok = monitor.Get("weather:office")
	require.True(t, ok)
	assert.Equal(t, health.StateHealthy, s.State)

	_, ok = monitor.Get("weather")
	assert.False(t, ok, "the bare name is not a key when an instance is set")

	assert.Equal(t, float64(metric.StateFailed), promtestutil.ToFloat64(core.ModuleState.WithLabelValues("weather:home")))
	assert.Equal(t, float64(metric.StateOK), promtestutil.ToFloat64(core.ModuleState.WithLabelValues("weather:office")))
}

func TestPollFormatsField(t *testing.T) {
	srv := testutil.NewJSONServer(t, testutil.Response{Body: `{"current":{"temp":21.44,"sky":"Clear"}}`})

	p := newTestPoll(t, &delays{}, 3, PollOptions{
		URL:    srv.URL,
		Field:  "current.temp",
		Format: `{{round 1 .Value}}° {{lower .Doc.current.sky}}`,
	})
	sink := newSink()
	runModule(t, p, sink)

	sink.WaitFor(t, time.Second, hasText("21.4° clear"))
}

func TestPollPrometheus(t *testing.T) {
	srv := testutil.NewJSONServer(t, testutil.Response{Body: `{
		"status": "success",
		"data": {
			"resultType": "vector",
			"result": [
				{"metric": {"instance": "b"}, "value": [1700000000, "0.75"]},
				{"metric": {"instance": "a"}, "value": [1700000000, "0.25"]}
			]
		}
	}`})

	p := newTestPoll(t, &delays{}, 3, PollOptions{
		Source:  SourcePrometheus,
		Address: srv.URL,
		Query:   "up",
		Format:  `{{index .Labels "instance"}}={{round 2 .Value}} n={{len .Samples}}`,
	})
	sink := newSink()
	runModule(t, p, sink)

	sink.WaitFor(t, 2*time.Second, hasText("a=0.25 n=2"))
}

func TestPollPrometheusRange(t *testing.T) {
	srv := testutil.NewJSONServer(t, testutil.Response{Body: `{
		"status": "success",
		"data": {
			"resultType": "matrix",
			"result": [
				{"metric": {"zone": "gpu"}, "values": [[1720256760, "40"]]},
				{"metric": {"zone": "cpu"}, "values": [[1720256580, "83"], [1720256640, "48"], [1720256760, "52.5"]]}
			]
		}
	}`})

	deps := testDeps(&delays{}, fastBackoff(3))
	deps.Now = func() time.Time { return time.Unix(1720256760, 0) }
	opts := PollOptions{
		Source:   SourcePrometheus,
		Address:  srv.URL,
		Query:    "temp",
		Range:    4 * time.Minute,
		Interval: time.Hour,
		Format:   `{{index .Labels "zone"}} {{spark 0 100 .History}} {{.Value}} n={{len .Series}}`,
	}
	m, err := New(Spec{Kind: KindPoll, Name: "temp", Poll: &opts}, deps)
	require.NoError(t, err)

	sink := newSink()
	runModule(t, m, sink)

	// slots at -4m..0: nothing, 83, 48, nothing, 52.5
	sink.WaitFor(t, 2*time.Second, hasText("cpu  ▆▃ ▄ 52.5 n=2"))
	assert.Equal(t, []string{"/api/v1/query_range"}, srv.Paths())
}

func TestPollPrometheusRangeEmpty(t *testing.T) {
	srv := testutil.NewJSONServer(t, testutil.Response{Body: `{"status":"success","data":{"resultType":"matrix","result":[]}}`})

	p := newTestPoll(t, &delays{}, 3, PollOptions{
		Source:  SourcePrometheus,
		Address: srv.URL,
		Query:   "temp",
		Range:   time.Hour,
		Step:    10 * time.Minute,
		Format:  `{{if .Value}}{{.Value}}{{else}}no data{{end}}`,
	})
	sink := newSink()
	runModule(t, p, sink)

	sink.WaitFor(t, 2*time.Second, hasText("no data"))
}

func TestOnGrid(t *testing.T) {
	start := time.Unix(1000, 0)
	points := []netclient.Point{
		{Time: start.Add(-time.Minute), Value: 1},
		{Time: start, Value: 2},
		{Time: start.Add(2*time.Minute + 5*time.Second), Value: 3},
		{Time: start.Add(10 * time.Minute), Value: 4},
	}

	got := onGrid(points, start, time.Minute, 4)
	require.Len(t, got, 4)
	assert.Equal(t, 2.0, got[0])
	assert.True(t, math.IsNaN(got[1]))
	assert.Equal(t, 3.0, got[2])
	assert.True(t, math.IsNaN(got[3]))
}

func TestPollRangeValidate(t *testing.T) {
	tests := []struct {
		name string
		opts PollOptions
	}{
		{"range on http", PollOptions{URL: "http://x", Range: time.Hour}},
		{"step without range", PollOptions{Source: SourcePrometheus, Address: "http://x", Query: "up", Step: time.Minute}},
		{"step longer than range", PollOptions{Source: SourcePrometheus, Address: "http://x", Query: "up", Range: time.Minute, Step: time.Hour}},
		{"negative range", PollOptions{Source: SourcePrometheus, Address: "http://x", Query: "up", Range: -time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			err := Spec{Kind: KindPoll, Name: "p", Poll: &opts}.Validate()
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}

	opts := PollOptions{Source: SourcePrometheus, Address: "http://x", Query: "up", Range: time.Hour}
	assert.NoError(t, Spec{Kind: KindPoll, Name: "p", Poll: &opts}.Validate())
}

func TestPollRefreshOnClick(t *testing.T) {
	srv := testutil.NewJSONServer(t,
		testutil.Response{Body: `{"n":1}`},
		testutil.Response{Body: `{"n":2}`},
	)

	p := newTestPoll(t, &delays{}, 3, PollOptions{URL: srv.URL, Field: "n", RefreshOnClick: true})
	sink := newSink()
	runModule(t, p, sink)

	sink.WaitFor(t, time.Second, hasText("1"))
	require.NoError(t, p.Click(context.Background(), protocol.ClickEvent{Button: protocol.ButtonLeft}))
	sink.WaitFor(t, time.Second, hasText("2"))
	assert.Equal(t, 2, srv.Hits())
}

func TestPollClickWithoutRefresh(t *testing.T) {
	srv := testutil.NewJSONServer(t, testutil.Response{Body: `{"n":1}`})

	p := newTestPoll(t, &delays{}, 3, PollOptions{URL: srv.URL, Field: "n"})
	sink := newSink()
	runModule(t, p, sink)

	sink.WaitForLen(t, 1, time.Second)
	require.NoError(t, p.Click(context.Background(), protocol.ClickEvent{Button: protocol.ButtonLeft}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.Hits())
}
