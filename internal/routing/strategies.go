package routing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"journey-app/internal/models"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

// Strategy produces a route or a failure; the resolver picks the first
// success.
type Strategy interface {
	Name() string
	Route(ctx context.Context, origin, destination Point) (*Route, error)
}

// OSRMStrategy asks an OSRM-compatible HTTP routing service. Failures are
// expected (timeouts, non-2xx, malformed bodies) and feed the circuit
// breaker so a dead upstream is skipped quickly instead of costing the full
// timeout on every resolution.
type OSRMStrategy struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Route]
}

func NewOSRMStrategy(baseURL string, timeout time.Duration) *OSRMStrategy {
	return &OSRMStrategy{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*Route](gobreaker.Settings{
			Name:    "osrm",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (s *OSRMStrategy) Name() string { return "osrm" }

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

func (s *OSRMStrategy) Route(ctx context.Context, origin, destination Point) (*Route, error) {
	return s.breaker.Execute(func() (*Route, error) {
		route, err := s.fetch(ctx, origin, destination)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
		}
		return route, nil
	})
}

func (s *OSRMStrategy) fetch(ctx context.Context, origin, destination Point) (*Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		s.baseURL, origin.Lng, origin.Lat, destination.Lng, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed routing response: %w", err)
	}

	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("no route in response (code %q)", parsed.Code)
	}

	best := parsed.Routes[0]
	points := make([]Point, 0, len(best.Geometry.Coordinates))
	for _, coord := range best.Geometry.Coordinates {
		if len(coord) != 2 {
			return nil, fmt.Errorf("malformed coordinate in routing response")
		}
		points = append(points, Point{Lat: coord[1], Lng: coord[0]})
	}

	if len(points) < 2 {
		return nil, fmt.Errorf("degenerate route geometry")
	}

	distance := int(best.Distance)
	duration := int(best.Duration)
	return &Route{
		Points:          points,
		DistanceMeters:  distance,
		DurationSeconds: duration,
		DistanceText:    formatDistance(distance),
		DurationText:    formatDuration(duration),
		Source:          s.Name(),
	}, nil
}

// StraightLineStrategy is the guaranteed last resort: a two-point segment
// with a haversine distance and a speed-table ETA. It cannot fail.
type StraightLineStrategy struct {
	Mode string
}

func (s *StraightLineStrategy) Name() string { return "straight-line" }

func (s *StraightLineStrategy) Route(_ context.Context, origin, destination Point) (*Route, error) {
	distanceKm := haversineKm(origin, destination)
	meters := int(distanceKm * 1000)
	seconds := estimateDuration(distanceKm, s.Mode)

	return &Route{
		Points:          []Point{origin, destination},
		DistanceMeters:  meters,
		DurationSeconds: seconds,
		DistanceText:    formatDistance(meters),
		DurationText:    formatDuration(seconds),
		Source:          s.Name(),
	}, nil
}
