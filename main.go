package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"web/artmap/cluster"
	"web/artmap/config"
	"web/artmap/logger"
	"web/artmap/place"
	"web/artmap/store"
	"web/artmap/view"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"    env:"CONFIG_FILE"    description:"Path to configuration file"`
	Addr       string `short:"a" long:"addr"      env:"LISTEN_ADDRESS" description:"Address to listen on"        default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"      env:"LISTEN_PORT"    description:"Port to listen on"           default:"8000"`
	DemoPlaces int    `long:"demo-places"         env:"DEMO_PLACES"    description:"Generate demo places when no source is configured" default:"500"`
	DataDir    string `short:"d" long:"data-dir"  env:"DATA_DIR"       description:"Directory for index snapshots" default:"data/snapshots"`
}

// franceBounds covers metropolitan France, used for demo data.
var franceBounds = cluster.Bounds{MinX: -4.8, MinY: 42.3, MaxX: 8.2, MaxY: 51.1}

// MapServer owns the coordinator and the snapshot directory. Handlers
// close over it the way the routes close over their state.
type MapServer struct {
	coord   *view.Coordinator
	history *view.History
	source  store.Store
	dataDir string
	cfg     *config.Config
}

// SnapshotInfo describes one saved index file.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	NumPlaces int       `json:"numPlaces"`
	Timestamp time.Time `json:"timestamp"`
	FileSize  int64     `json:"fileSize"`
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func (s *MapServer) snapshotFilename(size int) string {
	timestamp := time.Now().Format("20060102-150405")
	id := uuid.New().String()[:8]
	return filepath.Join(s.dataDir, fmt.Sprintf("index-%dp-%s-%s.zst", size, timestamp, id))
}

// parseSnapshotName inverts snapshotFilename.
// Format: index-{numPlaces}p-{timestamp}-{id}.zst
func parseSnapshotName(name string) (SnapshotInfo, bool) {
	parts := strings.Split(strings.TrimSuffix(name, ".zst"), "-")
	if len(parts) != 5 || parts[0] != "index" {
		return SnapshotInfo{}, false
	}
	numPlaces, err := strconv.Atoi(strings.TrimSuffix(parts[1], "p"))
	if err != nil {
		return SnapshotInfo{}, false
	}
	timestamp, err := time.Parse("20060102-150405", parts[2]+"-"+parts[3])
	if err != nil {
		return SnapshotInfo{}, false
	}
	return SnapshotInfo{ID: parts[4], NumPlaces: numPlaces, Timestamp: timestamp}, true
}

func (s *MapServer) listSnapshots() ([]SnapshotInfo, error) {
	files, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, err
	}

	snapshots := make([]SnapshotInfo, 0)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".zst" {
			continue
		}
		snap, ok := parseSnapshotName(file.Name())
		if !ok {
			log.Debug().Str("file", file.Name()).Msg("Skipping unrecognized snapshot file")
			continue
		}
		if info, err := file.Info(); err == nil {
			snap.FileSize = info.Size()
		}
		snapshots = append(snapshots, snap)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

func (s *MapServer) saveSnapshot() (string, error) {
	idx := s.coord.FullIndex()
	path := s.snapshotFilename(len(s.coord.Places()))

	start := time.Now()
	if err := idx.SaveCompressed(path); err != nil {
		return "", err
	}
	if info, err := os.Stat(path); err == nil {
		log.Info().
			Str("path", path).
			Str("size", formatFileSize(info.Size())).
			Dur("duration", time.Since(start)).
			Msg("Index snapshot saved")
	}
	return path, nil
}

func (s *MapServer) loadSnapshotByID(id string) (*SnapshotInfo, error) {
	files, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, err
	}

	var path string
	var snap SnapshotInfo
	for _, file := range files {
		if strings.Contains(file.Name(), id) && filepath.Ext(file.Name()) == ".zst" {
			if parsed, ok := parseSnapshotName(file.Name()); ok {
				path = filepath.Join(s.dataDir, file.Name())
				snap = parsed
				if info, err := os.Stat(path); err == nil {
					snap.FileSize = info.Size()
				}
				break
			}
		}
	}
	if path == "" {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}

	start := time.Now()
	idx, err := cluster.LoadCompressed(path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	log.Info().Str("path", path).Dur("duration", time.Since(start)).Msg("Index snapshot loaded")

	s.coord.SetPlaces(idx.Places)
	return &snap, nil
}

// refresh pulls a fresh catalog from the source. On failure the current
// snapshot keeps serving.
func (s *MapServer) refresh(ctx context.Context) error {
	if s.source == nil {
		return fmt.Errorf("no place source configured")
	}
	places, err := s.source.FetchPlaces(ctx)
	if err != nil {
		return err
	}
	s.coord.SetPlaces(places)
	log.Info().Int("places", len(places)).Msg("Catalog refreshed")
	return nil
}

func markersToGeoJSON(markers []cluster.MarkerNode) map[string]any {
	features := make([]map[string]any, len(markers))
	for i, m := range markers {
		properties := map[string]any{
			"cluster":     m.IsCluster(),
			"point_count": m.Count,
			"id":          m.ID,
		}
		if m.IsCluster() {
			properties["type_counts"] = m.TypeCounts
		} else {
			properties["place_id"] = m.PlaceID
		}
		features[i] = map[string]any{
			"type": "Feature",
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{float64(m.Lng), float64(m.Lat)},
			},
			"properties": properties,
		}
	}
	return map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	}
}

func parseViewportQuery(c *gin.Context, current view.Viewport) (view.Viewport, error) {
	v := current
	var err error
	if raw := c.Query("lat"); raw != "" {
		if v.Lat, err = strconv.ParseFloat(raw, 64); err != nil {
			return v, fmt.Errorf("invalid lat parameter")
		}
	}
	if raw := c.Query("lng"); raw != "" {
		if v.Lng, err = strconv.ParseFloat(raw, 64); err != nil {
			return v, fmt.Errorf("invalid lng parameter")
		}
	}
	if raw := c.Query("zoom"); raw != "" {
		if v.Zoom, err = strconv.ParseFloat(raw, 64); err != nil {
			return v, fmt.Errorf("invalid zoom parameter")
		}
	}
	if raw := c.Query("width"); raw != "" {
		if v.Width, err = strconv.Atoi(raw); err != nil {
			return v, fmt.Errorf("invalid width parameter")
		}
	}
	if raw := c.Query("height"); raw != "" {
		if v.Height, err = strconv.Atoi(raw); err != nil {
			return v, fmt.Errorf("invalid height parameter")
		}
	}
	return v, nil
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", opts.DataDir).Msg("Failed to create snapshot directory")
	}

	history := view.NewHistory()
	server := &MapServer{
		coord:   view.New(cfg.Coordinator(), history),
		history: history,
		dataDir: opts.DataDir,
		cfg:     cfg,
	}
	defer server.coord.Close()

	// Wire the configured catalog source, falling back to demo data.
	switch {
	case cfg.Source.SQLitePath != "":
		db, err := store.OpenSQLite(cfg.Source.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open place database")
		}
		defer db.Close()
		server.source = db
	case cfg.Source.FilePath != "":
		server.source = store.FileStore{Path: cfg.Source.FilePath}
	}

	if server.source != nil {
		if err := server.refresh(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Failed to load initial catalog")
		}
	} else if opts.DemoPlaces > 0 {
		places := cluster.GenerateTestPlaces(opts.DemoPlaces, franceBounds)
		server.coord.SetPlaces(places)
		log.Info().Int("places", len(places)).Msg("Running on generated demo data")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("ip", c.ClientIP()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Markers for a settled viewport, as GeoJSON plus a summary.
	r.GET("/api/markers", func(c *gin.Context) {
		viewport, err := parseViewportQuery(c, server.coord.Snapshot().Viewport)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		snap := server.coord.ViewportSettled(viewport)
		c.JSON(http.StatusOK, gin.H{
			"geojson": markersToGeoJSON(snap.Markers),
			"summary": cluster.Summarize(snap.Markers),
			"visible": snap.Visible,
			"total":   snap.Total,
		})
	})

	// The currently visible place list (post search, post filters).
	r.GET("/api/places", func(c *gin.Context) {
		snap := server.coord.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"places":  snap.Places,
			"visible": snap.Visible,
			"total":   snap.Total,
		})
	})

	r.GET("/api/places/:id", func(c *gin.Context) {
		id := c.Param("id")
		for _, p := range server.coord.Places() {
			if p.ID == id {
				c.JSON(http.StatusOK, p)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("place %s not found", id)})
	})

	// Current view state plus its shareable URL query.
	r.GET("/api/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state": server.coord.Snapshot(),
			"query": server.history.Current(),
		})
	})

	// Hydrate from a shared URL query string.
	r.POST("/api/state", func(c *gin.Context) {
		codec := view.Codec{Defaults: view.Defaults{
			Lat:  cfg.Map.Lat,
			Lng:  cfg.Map.Lng,
			Zoom: cfg.Map.Zoom,
		}}
		snap := server.coord.Hydrate(codec.Decode(c.Request.URL.RawQuery))
		c.JSON(http.StatusOK, snap)
	})

	r.POST("/api/search", func(c *gin.Context) {
		var req struct {
			Query string `json:"query"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		c.JSON(http.StatusOK, server.coord.SetSearch(req.Query))
	})

	r.POST("/api/filters", func(c *gin.Context) {
		var req struct {
			Types  []place.Type `json:"types"`
			Region string       `json:"region"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		for _, t := range req.Types {
			if !t.Known() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown type %q", t)})
				return
			}
		}
		snap := server.coord.SetFilters(view.Filters{Types: req.Types, Region: req.Region}, true)
		c.JSON(http.StatusOK, snap)
	})

	r.POST("/api/select/:id", func(c *gin.Context) {
		id := c.Param("id")
		known := false
		for _, p := range server.coord.Places() {
			if p.ID == id {
				known = true
				break
			}
		}
		if !known {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("place %s not found", id)})
			return
		}
		recenter := c.Query("recenter") != "false"
		c.JSON(http.StatusOK, server.coord.Select(id, view.SelectOptions{Recenter: recenter}))
	})

	r.DELETE("/api/select", func(c *gin.Context) {
		c.JSON(http.StatusOK, server.coord.ClearSelection())
	})

	r.POST("/api/cluster/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cluster id"})
			return
		}
		// Unknown IDs are stale clicks from a previous recompute; the
		// snapshot simply comes back without a camera move.
		c.JSON(http.StatusOK, server.coord.ClusterClicked(uint32(id)))
	})

	r.POST("/api/reset", func(c *gin.Context) {
		c.JSON(http.StatusOK, server.coord.Reset())
	})

	r.POST("/api/refresh", func(c *gin.Context) {
		if err := server.refresh(c.Request.Context()); err != nil {
			// Stale data keeps serving; the caller just learns the pull failed.
			log.Warn().Err(err).Msg("Catalog refresh failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": len(server.coord.Places())})
	})

	r.GET("/api/snapshots", func(c *gin.Context) {
		snapshots, err := server.listSnapshots()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snapshots)
	})

	r.POST("/api/snapshots", func(c *gin.Context) {
		path, err := server.saveSnapshot()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": path})
	})

	r.POST("/api/snapshots/load/:id", func(c *gin.Context) {
		info, err := server.loadSnapshotByID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Snapshot loaded", "snapshot": info})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{Addr: listenAddr, Handler: r}

	go func() {
		log.Info().
			Str("addr", listenAddr).
			Int("places", len(server.coord.Places())).
			Msg("Map server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-quit
	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	// Persist the full index so the next start can skip the source pull.
	if len(server.coord.Places()) > 0 {
		if _, err := server.saveSnapshot(); err != nil {
			log.Error().Err(err).Msg("Failed to save shutdown snapshot")
		}
	}

	log.Info().Msg("Server stopped")
}
