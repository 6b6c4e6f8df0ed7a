// Package reconciler turns the inbound event stream of a journey session
// into a consistent local view: last known position per participant, the
// current destination, and resolved routes. It also drives the periodic
// location push loop while a session is active.
package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"journey-app/internal/models"
	"journey-app/internal/routing"
	"journey-app/pkg/logger"

	"github.com/goccy/go-json"
)

// DefaultPosition is used when the device position cannot be read.
var DefaultPosition = routing.Point{Lat: 40.730610, Lng: -73.935242}

// LocationSource reads the device's current position.
type LocationSource interface {
	Current(ctx context.Context) (routing.Point, error)
}

// RouteResolver is satisfied by routing.Resolver.
type RouteResolver interface {
	Resolve(ctx context.Context, origin, destination routing.Point) *routing.Route
}

type NoticeKind string

const (
	NoticeInfo               NoticeKind = "info"
	NoticeLocationFallback   NoticeKind = "location_fallback"
	NoticeDestinationChanged NoticeKind = "destination_changed"
	NoticeRouteUpdated       NoticeKind = "route_updated"
	NoticeError              NoticeKind = "error"
)

// Notice is a typed event for the presentation layer; the reconciler never
// talks to any UI mechanism directly.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Position is a participant's last known position. Entries are never
// expired; the view always shows last-known, however old.
type Position struct {
	Username  string
	Role      string
	Point     routing.Point
	Timestamp time.Time
}

// routeSlot tracks one route display (own or selected participant) so a new
// request supersedes an in-flight one: last-request-wins, stale results are
// discarded.
type routeSlot struct {
	gen    uint64
	cancel context.CancelFunc
	route  *routing.Route
}

func (s *routeSlot) supersede() (uint64, context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return s.gen, ctx
}

type Reconciler struct {
	gateway  Gateway
	resolver RouteResolver
	source   LocationSource
	interval time.Duration

	mu           sync.Mutex
	selfID       int
	journey      *models.Journey
	participants []models.Participant
	positions    map[int]Position
	current      routing.Point
	located      bool
	destination  *routing.Point

	ownRoute      routeSlot
	selectedID    int
	selectedRoute routeSlot

	notices chan Notice
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(gateway Gateway, resolver RouteResolver, source LocationSource, selfID int, pushInterval time.Duration) *Reconciler {
	if pushInterval <= 0 {
		pushInterval = 10 * time.Second
	}

	return &Reconciler{
		gateway:   gateway,
		resolver:  resolver,
		source:    source,
		interval:  pushInterval,
		selfID:    selfID,
		positions: make(map[int]Position),
		notices:   make(chan Notice, 32),
	}
}

// Notices delivers typed events to the presentation layer.
func (r *Reconciler) Notices() <-chan Notice {
	return r.notices
}

// Locate reads the device position, falling back to DefaultPosition with a
// non-fatal notice when the source fails.
func (r *Reconciler) Locate(ctx context.Context) routing.Point {
	point, err := r.source.Current(ctx)
	if err != nil {
		logger.Error("Error getting device location: %v", err)
		r.notify(NoticeLocationFallback, "Unable to get your location. Using default location.")
		point = DefaultPosition
	}

	r.mu.Lock()
	r.current = point
	r.located = true
	r.mu.Unlock()
	return point
}

// Join enters the session's room and starts the event and push loops. Both
// run until Close, which cancels them synchronously.
func (r *Reconciler) Join(journey *models.Journey) error {
	r.mu.Lock()
	r.journey = journey
	if journey.Destination != nil {
		dest := routing.Point{Lat: journey.Destination.Latitude(), Lng: journey.Destination.Longitude()}
		r.destination = &dest
	}
	r.mu.Unlock()

	if err := r.gateway.JoinJourney(journey.Code); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(2)
	go r.eventLoop(ctx)
	go r.pushLoop(ctx, journey.Code)

	return nil
}

// Close tears the reconciler down: loops stop, in-flight route fetches are
// cancelled, no timers outlive the call.
func (r *Reconciler) Close() error {
	if r.cancel != nil {
		r.cancel()
	}

	r.mu.Lock()
	if r.ownRoute.cancel != nil {
		r.ownRoute.cancel()
	}
	if r.selectedRoute.cancel != nil {
		r.selectedRoute.cancel()
	}
	r.mu.Unlock()

	err := r.gateway.Close()
	r.wg.Wait()
	return err
}

// pushLoop samples the device position on a fixed interval and submits it.
func (r *Reconciler) pushLoop(ctx context.Context, code string) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			point, err := r.source.Current(ctx)
			if err != nil {
				logger.Error("Error getting location for sharing: %v", err)
				continue
			}

			r.mu.Lock()
			r.current = point
			r.located = true
			r.mu.Unlock()

			if err := r.gateway.SendLocationUpdate(code, point.Lat, point.Lng); err != nil {
				logger.Error("Error sending location update: %v", err)
			}
		}
	}
}

func (r *Reconciler) eventLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-r.gateway.Events():
			if !ok {
				return
			}
			r.handleEvent(envelope)
		}
	}
}

func (r *Reconciler) handleEvent(envelope models.Envelope) {
	switch {
	case envelope.Event == models.EventJourneyJoined:
		var payload models.JourneyJoinedPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		r.mu.Lock()
		r.journey = payload.Journey
		r.participants = payload.Participants
		r.mu.Unlock()

	case envelope.Event == models.EventLocationUpdate:
		var payload models.LocationBroadcast
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		r.applyLocation(payload)

	case envelope.Event == models.EventUserJoined:
		var payload models.UserEventPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		r.mu.Lock()
		r.addParticipant(payload.User)
		r.mu.Unlock()
		r.notify(NoticeInfo, payload.Message)

	case envelope.Event == models.EventUserLeft:
		var payload models.UserEventPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		r.mu.Lock()
		delete(r.positions, payload.User.ID)
		if r.selectedID == payload.User.ID {
			r.selectedID = 0
			r.selectedRoute.route = nil
		}
		r.mu.Unlock()
		r.notify(NoticeInfo, payload.Message)

	case envelope.Event == models.EventJourneyMessage+"-"+models.MessageTypeDestinationUpdated:
		var payload models.DestinationUpdated
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		// The gateway re-broadcasts member-supplied payloads verbatim, so
		// the destination must be validated here before its coordinates
		// are read.
		if !validDestination(payload.Destination) {
			logger.Debug("Ignoring destination update with malformed coordinates")
			return
		}
		r.applyDestination(payload)

	case envelope.Event == models.EventError:
		var message string
		if err := json.Unmarshal(envelope.Data, &message); err != nil {
			message = "gateway error"
		}
		r.notify(NoticeError, message)

	case strings.HasPrefix(envelope.Event, models.EventJourneyMessage+"-"):
		// Other message types carry no reconciler state.

	default:
		logger.Debug("Ignoring gateway event %s", envelope.Event)
	}
}

// applyLocation is last-writer-wins per participant: no dedup and no
// out-of-order rejection, matching the broadcast contract.
func (r *Reconciler) applyLocation(payload models.LocationBroadcast) {
	r.mu.Lock()
	r.positions[payload.UserID] = Position{
		Username:  payload.Username,
		Role:      payload.Role,
		Point:     routing.Point{Lat: payload.Latitude, Lng: payload.Longitude},
		Timestamp: payload.Timestamp,
	}
	if payload.UserID == r.selfID {
		// Own echo from the broadcast stream is the source of truth.
		r.current = routing.Point{Lat: payload.Latitude, Lng: payload.Longitude}
		r.located = true
	}
	selected := r.selectedID == payload.UserID
	r.mu.Unlock()

	if selected {
		r.refreshSelectedRoute()
	}
}

func (r *Reconciler) applyDestination(payload models.DestinationUpdated) {
	dest := routing.Point{
		Lat: payload.Destination.Latitude(),
		Lng: payload.Destination.Longitude(),
	}

	r.mu.Lock()
	r.destination = &dest
	if r.journey != nil {
		r.journey.Destination = payload.Destination
	}
	hadOwnRoute := r.ownRoute.route != nil
	hadSelected := r.selectedRoute.route != nil
	r.mu.Unlock()

	r.notify(NoticeDestinationChanged, "Destination updated by "+payload.UpdatedBy)

	// Re-resolve whatever is on display against the new destination.
	if hadOwnRoute {
		r.ShowOwnRoute()
	}
	if hadSelected {
		r.refreshSelectedRoute()
	}
}

// ShowOwnRoute resolves the route from the current position to the
// destination. It is a no-op until both endpoints are known.
func (r *Reconciler) ShowOwnRoute() {
	r.mu.Lock()
	if !r.located || r.destination == nil {
		r.mu.Unlock()
		return
	}
	origin := r.current
	dest := *r.destination
	gen, ctx := r.ownRoute.supersede()
	r.mu.Unlock()

	r.resolveInto(ctx, gen, origin, dest, &r.ownRoute)
}

// SelectParticipant toggles the display of one participant's route to the
// destination. Selecting the same participant again clears it.
func (r *Reconciler) SelectParticipant(userID int) {
	r.mu.Lock()
	if r.selectedID == userID {
		r.selectedID = 0
		r.selectedRoute.route = nil
		if r.selectedRoute.cancel != nil {
			r.selectedRoute.cancel()
		}
		r.mu.Unlock()
		return
	}
	r.selectedID = userID
	r.selectedRoute.route = nil
	r.mu.Unlock()

	r.refreshSelectedRoute()
}

func (r *Reconciler) refreshSelectedRoute() {
	r.mu.Lock()
	position, known := r.positions[r.selectedID]
	if r.selectedID == 0 || !known || r.destination == nil {
		r.mu.Unlock()
		return
	}
	dest := *r.destination
	gen, ctx := r.selectedRoute.supersede()
	r.mu.Unlock()

	r.resolveInto(ctx, gen, position.Point, dest, &r.selectedRoute)
}

// resolveInto runs the resolver off the caller's goroutine and installs the
// result only if the slot has not been superseded meanwhile.
func (r *Reconciler) resolveInto(ctx context.Context, gen uint64, origin, dest routing.Point, slot *routeSlot) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		route := r.resolver.Resolve(ctx, origin, dest)

		r.mu.Lock()
		stale := slot.gen != gen
		if !stale {
			slot.route = route
		}
		r.mu.Unlock()

		if !stale {
			r.notify(NoticeRouteUpdated, route.Source)
		}
	}()
}

func validDestination(p *models.GeoPoint) bool {
	if p == nil || len(p.Coordinates) != 2 {
		return false
	}
	lng, lat := p.Longitude(), p.Latitude()
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

func (r *Reconciler) addParticipant(user models.Participant) {
	for _, p := range r.participants {
		if p.ID == user.ID {
			return
		}
	}
	r.participants = append(r.participants, user)
}

// Positions returns a copy of the per-participant last-known-position map.
func (r *Reconciler) Positions() map[int]Position {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int]Position, len(r.positions))
	for id, p := range r.positions {
		out[id] = p
	}
	return out
}

func (r *Reconciler) Participants() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Participant(nil), r.participants...)
}

func (r *Reconciler) OwnRoute() *routing.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownRoute.route
}

func (r *Reconciler) SelectedRoute() (int, *routing.Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectedID, r.selectedRoute.route
}

func (r *Reconciler) Destination() *routing.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destination == nil {
		return nil
	}
	dest := *r.destination
	return &dest
}

func (r *Reconciler) notify(kind NoticeKind, message string) {
	select {
	case r.notices <- Notice{Kind: kind, Message: message}:
	default:
		// Presentation layer is not draining; notices are advisory.
	}
}
