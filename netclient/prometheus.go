package netclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/c360/swaybar/errors"
)

// Sample is one result of an instant query
type Sample struct {
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
}

// Point is one value of a range query
type Point struct {
	Time  time.Time
	Value float64
}

// Series is one labelled result of a range query, oldest point first
type Series struct {
	Labels map[string]string
	Points []Point
}

// Prometheus runs PromQL queries against one server
type Prometheus struct {
	api     v1.API
	timeout time.Duration
}

// NewPrometheus creates a query client for address (e.g. http://localhost:9090)
func NewPrometheus(address string, timeout time.Duration, rt http.RoundTripper) (*Prometheus, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client, err := api.NewClient(api.Config{Address: address, RoundTripper: rt})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Prometheus", "NewPrometheus", "client setup")
	}
	return &Prometheus{api: v1.NewAPI(client), timeout: timeout}, nil
}

// Query evaluates query at the current time. Vector results are sorted by
// their label sets so the first sample is stable between polls.
func (p *Prometheus) Query(ctx context.Context, query string) ([]Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	value, _, err := p.api.Query(ctx, query, time.Now(), v1.WithTimeout(p.timeout))
	if err != nil {
		return nil, classifyQueryError(err, "Query")
	}

	return samplesFrom(value)
}

// QueryRange evaluates query at every step from start to end. Series are
// sorted by their label sets like Query's samples.
func (p *Prometheus) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) ([]Series, error) {
	if step <= 0 || end.Before(start) {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: range %v..%v step %v", errors.ErrInvalidConfig, start, end, step),
			"Prometheus", "QueryRange", "range check")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	r := v1.Range{Start: start, End: end, Step: step}
	value, _, err := p.api.QueryRange(ctx, query, r, v1.WithTimeout(p.timeout))
	if err != nil {
		return nil, classifyQueryError(err, "QueryRange")
	}

	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: range query returned %T", errors.ErrInvalidData, value),
			"Prometheus", "QueryRange", "result decode")
	}
	sortMatrix(matrix)

	out := make([]Series, 0, len(matrix))
	for _, stream := range matrix {
		points := make([]Point, 0, len(stream.Values))
		for _, pair := range stream.Values {
			points = append(points, Point{Time: pair.Timestamp.Time(), Value: float64(pair.Value)})
		}
		out = append(out, Series{Labels: labelsOf(stream.Metric), Points: points})
	}
	return out, nil
}

// classifyQueryError treats rejected PromQL as invalid and everything else,
// the server being down included, as transient
func classifyQueryError(err error, method string) error {
	var apiErr *v1.Error
	if stderrors.As(err, &apiErr) && apiErr.Type == v1.ErrBadData {
		return errors.WrapInvalid(err, "Prometheus", method, "query")
	}
	return errors.WrapTransient(err, "Prometheus", method, "query")
}

func labelsOf(metric model.Metric) map[string]string {
	labels := make(map[string]string, len(metric))
	for k, v := range metric {
		labels[string(k)] = string(v)
	}
	return labels
}

func sortMatrix(m model.Matrix) {
	sort.Slice(m, func(i, j int) bool {
		return m[i].Metric.Before(m[j].Metric)
	})
}

// samplesFrom flattens an instant result. A range selector such as up[5m]
// yields a matrix; each series contributes its newest value.
func samplesFrom(value model.Value) ([]Sample, error) {
	switch v := value.(type) {
	case model.Vector:
		sort.Slice(v, func(i, j int) bool {
			return v[i].Metric.Before(v[j].Metric)
		})
		out := make([]Sample, 0, len(v))
		for _, s := range v {
			out = append(out, Sample{Value: float64(s.Value), Labels: labelsOf(s.Metric), Timestamp: s.Timestamp.Time()})
		}
		return out, nil
	case model.Matrix:
		sortMatrix(v)
		out := make([]Sample, 0, len(v))
		for _, stream := range v {
			if len(stream.Values) == 0 {
				continue
			}
			last := stream.Values[len(stream.Values)-1]
			out = append(out, Sample{Value: float64(last.Value), Labels: labelsOf(stream.Metric), Timestamp: last.Timestamp.Time()})
		}
		return out, nil
	case *model.Scalar:
		return []Sample{{Value: float64(v.Value), Timestamp: v.Timestamp.Time()}}, nil
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unsupported result type %s", errors.ErrInvalidData, value.Type()),
			"Prometheus", "Query", "result decode")
	}
}
