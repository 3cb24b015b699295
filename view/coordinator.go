package view

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"web/artmap/cluster"
	"web/artmap/place"
	"web/artmap/search"
)

// Config carries the coordinator's tunables. Zero values fall back to the
// defaults the production app ships with.
type Config struct {
	Defaults  Defaults
	FocusZoom float64 // camera zoom when recentering on a selected place
	MaxZoom   float64 // hard camera cap, never exceeded by cluster clicks

	DebounceWindow time.Duration // viewport URL write delay
	AnimationDelay time.Duration // how long CenterOnSelection stays set

	Cluster cluster.Options
	Search  search.Options
}

func (c Config) withDefaults() Config {
	if c.Defaults == (Defaults{}) {
		c.Defaults = DefaultsFrance
	}
	if c.FocusZoom <= 0 {
		c.FocusZoom = 14
	}
	if c.MaxZoom <= 0 {
		c.MaxZoom = cluster.MaxSaneZoom
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 500 * time.Millisecond
	}
	if c.AnimationDelay <= 0 {
		c.AnimationDelay = 1500 * time.Millisecond
	}
	return c
}

// Snapshot is the read-only render output published after every
// transition. The rendering layer consumes it and nothing else.
type Snapshot struct {
	Viewport  Viewport             `json:"viewport"`
	Filters   Filters              `json:"filters"`
	Search    Search               `json:"search"`
	Selection Selection            `json:"selection"`
	Camera    *Camera              `json:"camera,omitempty"`
	Markers   []cluster.MarkerNode `json:"markers"`
	Places    []place.Place        `json:"places"`
	Visible   int                  `json:"visible"` // post-search, post-filter
	Total     int                  `json:"total"`   // full snapshot size
}

// Coordinator owns the view state and the two indexes derived from the
// place snapshot. All state-changing calls are processed in invocation
// order; the only deferred side effect is the debounced viewport URL
// write, and even there the internal state updates immediately.
//
// The debounce and animation timers fire on their own goroutines, so the
// struct is mutex-guarded even though callers are expected to drive it
// from a single event loop.
type Coordinator struct {
	mu sync.Mutex

	cfg   Config
	codec Codec
	sink  URLSink

	places []place.Place // full snapshot, borrowed from the store
	text   *search.Index // over the full snapshot
	marks  *cluster.Index // over the searched+filtered working set

	viewport  Viewport
	filters   Filters
	searchSt  Search
	selection Selection
	camera    *Camera

	working []place.Place // after search narrowing
	results []place.Place // after search, then filters
	markers []cluster.MarkerNode

	urlTimer  *time.Timer
	animTimer *time.Timer
}

// New builds a coordinator with no places loaded. sink must not be nil;
// use NewHistory when no real navigation state exists.
func New(cfg Config, sink URLSink) *Coordinator {
	cfg = cfg.withDefaults()
	c := &Coordinator{
		cfg:   cfg,
		codec: Codec{Defaults: cfg.Defaults},
		sink:  sink,
		viewport: Viewport{
			Lat:  cfg.Defaults.Lat,
			Lng:  cfg.Defaults.Lng,
			Zoom: cfg.Defaults.Zoom,
		},
		filters: Filters{Region: RegionAll},
	}
	c.text = search.NewIndex(nil, cfg.Search)
	c.marks = cluster.NewIndex(cfg.Cluster)
	c.recompute()
	return c
}

// Close stops the timers. Pending debounced URL writes are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.urlTimer != nil {
		c.urlTimer.Stop()
		c.urlTimer = nil
	}
	if c.animTimer != nil {
		c.animTimer.Stop()
		c.animTimer = nil
	}
}

// SetPlaces replaces the place snapshot and rebuilds both indexes from
// scratch, then re-applies the current search and filters.
func (c *Coordinator) SetPlaces(places []place.Place) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.places = places
	c.text = search.NewIndex(places, c.cfg.Search)
	c.recompute()
	return c.snapshotLocked()
}

// SetSearch updates the free-text query. The URL reflects it immediately.
func (c *Coordinator) SetSearch(query string) Snapshot {
	c.mu.Lock()
	c.searchSt.Query = query
	c.recompute()
	q := c.codec.EncodeQuery(c.stateLocked())
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.sink.Replace(q)
	return snap
}

// SetFilters replaces the filter state. Filter changes are discrete user
// actions, so the URL write is immediate; push controls whether it adds a
// history entry.
func (c *Coordinator) SetFilters(f Filters, push bool) Snapshot {
	c.mu.Lock()
	c.filters = f
	c.recompute()
	q := c.codec.EncodeQuery(c.stateLocked())
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.writeURL(q, push)
	return snap
}

// ViewportSettled records a settled pan/zoom. Markers recompute
// immediately; the URL write is debounced so a burst of settle events
// produces exactly one write, for the final viewport.
func (c *Coordinator) ViewportSettled(v Viewport) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.Width <= 0 {
		v.Width = c.viewport.Width
	}
	if v.Height <= 0 {
		v.Height = c.viewport.Height
	}
	c.viewport = v
	c.recomputeMarkersLocked()

	if c.urlTimer != nil {
		c.urlTimer.Stop()
	}
	c.urlTimer = time.AfterFunc(c.cfg.DebounceWindow, c.flushViewportURL)
	return c.snapshotLocked()
}

func (c *Coordinator) flushViewportURL() {
	c.mu.Lock()
	query := c.codec.EncodeQuery(c.stateLocked())
	c.urlTimer = nil
	c.mu.Unlock()
	// Sink call outside the lock; sinks may be arbitrarily slow.
	c.sink.Replace(query)
}

// SelectOptions control Select behaviour.
type SelectOptions struct {
	Recenter bool
	Push     bool
}

// Select marks a place as selected and writes it to the URL immediately.
// With Recenter, the camera targets the place at the focus zoom and the
// one-shot CenterOnSelection flag arms, clearing itself after the
// animation delay even if the same place is selected again.
func (c *Coordinator) Select(id string, opts SelectOptions) Snapshot {
	c.mu.Lock()
	c.selection.ID = id

	if opts.Recenter {
		if p, ok := c.findPlaceLocked(id); ok && p.HasValidCoordinates() {
			zoom := c.cfg.FocusZoom
			if zoom > c.cfg.MaxZoom {
				zoom = c.cfg.MaxZoom
			}
			c.camera = &Camera{Lat: p.Lat, Lng: p.Lng, Zoom: zoom}
			c.selection.CenterOnSelection = true
			c.armAnimationTimerLocked()
		}
	}

	q := c.codec.EncodeQuery(c.stateLocked())
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.writeURL(q, opts.Push)
	return snap
}

// ClearSelection drops the selection and removes it from the URL while
// preserving all other state.
func (c *Coordinator) ClearSelection() Snapshot {
	c.mu.Lock()
	c.selection = Selection{}
	c.camera = nil
	q := c.codec.EncodeQuery(c.stateLocked())
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.sink.Replace(q)
	return snap
}

// ClusterClicked computes the clicked cluster's expansion zoom and issues
// a camera move to its representative point. Selection is untouched.
// Unknown cluster IDs are ignored; stale clicks arrive after recomputes.
func (c *Coordinator) ClusterClicked(clusterID uint32) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.markers {
		if n.ID != clusterID || !n.IsCluster() {
			continue
		}
		zoom := float64(c.marks.ExpansionZoom(n, int(c.viewport.Zoom)))
		if zoom > c.cfg.MaxZoom {
			zoom = c.cfg.MaxZoom
		}
		c.camera = &Camera{Lat: float64(n.Lat), Lng: float64(n.Lng), Zoom: zoom}
		c.armAnimationTimerLocked()
		break
	}
	return c.snapshotLocked()
}

// Reset clears search, filters and selection in one step and returns the
// viewport to the default center and zoom.
func (c *Coordinator) Reset() Snapshot {
	c.mu.Lock()
	c.searchSt = Search{}
	c.filters = Filters{Region: RegionAll}
	c.selection = Selection{}
	c.camera = nil
	c.viewport.Lat = c.cfg.Defaults.Lat
	c.viewport.Lng = c.cfg.Defaults.Lng
	c.viewport.Zoom = c.cfg.Defaults.Zoom

	c.recompute()
	q := c.codec.EncodeQuery(c.stateLocked())
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.sink.Push(q)
	return snap
}

// Hydrate applies a decoded URL state as one atomic update, guaranteeing
// that search narrows before filters regardless of which keys are present.
// Nothing is written back to the URL; the state came from it.
func (c *Coordinator) Hydrate(p Partial) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Search != nil {
		c.searchSt.Query = *p.Search
	}
	if p.Type != nil {
		c.filters.Types = []place.Type{*p.Type}
	}
	if p.Region != nil {
		c.filters.Region = *p.Region
	}
	if p.Lat != nil {
		c.viewport.Lat = *p.Lat
	}
	if p.Lng != nil {
		c.viewport.Lng = *p.Lng
	}
	if p.Zoom != nil {
		c.viewport.Zoom = *p.Zoom
	}

	c.recompute()

	if p.Location != nil {
		c.selection.ID = *p.Location
		// Deep links center on the shared place unless the URL pins an
		// explicit viewport.
		if p.Lat == nil && p.Lng == nil {
			if pl, ok := c.findPlaceLocked(*p.Location); ok && pl.HasValidCoordinates() {
				c.camera = &Camera{Lat: pl.Lat, Lng: pl.Lng, Zoom: c.cfg.FocusZoom}
				c.selection.CenterOnSelection = true
				c.armAnimationTimerLocked()
			}
		}
	}
	return c.snapshotLocked()
}

// Snapshot returns the current render output without changing anything.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// FullIndex builds a spatial index over the complete place snapshot,
// ignoring search and filters. Used for snapshot persistence.
func (c *Coordinator) FullIndex() *cluster.Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := cluster.NewIndex(c.cfg.Cluster)
	idx.Load(c.places)
	return idx
}

// Places returns the full place snapshot.
func (c *Coordinator) Places() []place.Place {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.places
}

func (c *Coordinator) armAnimationTimerLocked() {
	if c.animTimer != nil {
		c.animTimer.Stop()
	}
	c.animTimer = time.AfterFunc(c.cfg.AnimationDelay, func() {
		c.mu.Lock()
		c.selection.CenterOnSelection = false
		c.camera = nil
		c.animTimer = nil
		c.mu.Unlock()
	})
}

// recompute re-derives working set, filtered results and markers. Search
// narrows first, then filters; the visible counts depend on this order.
func (c *Coordinator) recompute() {
	q := strings.TrimSpace(c.searchSt.Query)
	if utf8.RuneCountInString(q) >= c.text.Options.MinQueryLength {
		c.working = c.text.Search(q)
	} else {
		c.working = c.places
	}

	if c.filters.Active() {
		results := make([]place.Place, 0, len(c.working))
		for _, p := range c.working {
			if c.filters.Matches(p) {
				results = append(results, p)
			}
		}
		c.results = results
	} else {
		c.results = c.working
	}

	c.marks = cluster.NewIndex(c.cfg.Cluster)
	c.marks.Load(c.results)
	c.recomputeMarkersLocked()
}

func (c *Coordinator) recomputeMarkersLocked() {
	width, height := c.viewport.Width, c.viewport.Height
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 800
	}
	bounds := cluster.ViewportBounds(
		c.viewport.Lat, c.viewport.Lng, c.viewport.Zoom,
		width, height, c.marks.Options.Extent)
	c.markers = c.marks.Query(bounds, c.viewport.Zoom)
}

// writeURL hands an already-encoded query to the sink. Must be called
// without holding c.mu; sinks may be arbitrarily slow or call back in.
func (c *Coordinator) writeURL(query string, push bool) {
	if push {
		c.sink.Push(query)
	} else {
		c.sink.Replace(query)
	}
}

func (c *Coordinator) stateLocked() State {
	return State{
		Viewport:  c.viewport,
		Filters:   c.filters,
		Search:    c.searchSt,
		Selection: c.selection,
	}
}

func (c *Coordinator) findPlaceLocked(id string) (place.Place, bool) {
	for _, p := range c.places {
		if p.ID == id {
			return p, true
		}
	}
	return place.Place{}, false
}

func (c *Coordinator) snapshotLocked() Snapshot {
	markers := make([]cluster.MarkerNode, len(c.markers))
	copy(markers, c.markers)
	places := make([]place.Place, len(c.results))
	copy(places, c.results)

	var camera *Camera
	if c.camera != nil {
		cam := *c.camera
		camera = &cam
	}

	return Snapshot{
		Viewport:  c.viewport,
		Filters:   c.filters,
		Search:    c.searchSt,
		Selection: c.selection,
		Camera:    camera,
		Markers:   markers,
		Places:    places,
		Visible:   len(c.results),
		Total:     len(c.places),
	}
}
