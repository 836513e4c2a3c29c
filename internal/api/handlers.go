package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/seisnet-go/internal/buildinfo"
	"github.com/tphakala/seisnet-go/internal/datastore"
	"github.com/tphakala/seisnet-go/internal/output"
)

// RunResponse describes a stored run.
type RunResponse struct {
	RunID         string    `json:"run_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Triggers      int       `json:"triggers"`
	Groups        int       `json:"groups"`
	Discarded     int       `json:"discarded"`
	FalsePositive int       `json:"false_positive"`
	Verified      int       `json:"verified"`
	Detections    int       `json:"detections"`
	Exclusions    int       `json:"exclusions"`
	CreatedAt     time.Time `json:"created_at"`
}

// BasisResponse summarizes a stored detector without its vectors.
type BasisResponse struct {
	SourceID   string   `json:"source_id"`
	Station    string   `json:"station"`
	Kind       string   `json:"kind"`
	Members    []string `json:"members"`
	Excluded   []string `json:"excluded,omitempty"`
	Rank       int      `json:"rank"`
	Threshold  float64  `json:"threshold"`
	SampleRate float64  `json:"sample_rate"`
	Length     int      `json:"length"`
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.settings.Version,
		"build":          buildinfo.Get(),
		"datastore":      s.dataStore != nil,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) requireStore() error {
	if s.dataStore == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "datastore is not configured")
	}
	return nil
}

func parseTimeParam(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC3339 time")
	}
	return t, nil
}

// getDetections lists detections of all runs in [start, end) with at least
// min_stations stations, or the catalog of one run when run_id is set.
func (s *Server) getDetections(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}

	if runID := c.QueryParam("run_id"); runID != "" {
		catalog, err := s.dataStore.LoadCatalog(runID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, output.NewCatalogView(runID, catalog).Detections)
	}

	start, err := parseTimeParam(c, "start")
	if err != nil {
		return err
	}
	end, err := parseTimeParam(c, "end")
	if err != nil {
		return err
	}
	minStations := 0
	if v := c.QueryParam("min_stations"); v != "" {
		if minStations, err = strconv.Atoi(v); err != nil || minStations < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid min_stations")
		}
	}

	records, err := s.dataStore.QueryDetections(start, end, minStations)
	if err != nil {
		return err
	}
	views := make([]output.DetectionView, 0, len(records))
	for i := range records {
		d := records[i].ToDetection()
		views = append(views, output.NewDetectionView(&d))
	}
	return c.JSON(http.StatusOK, views)
}

func newRunResponse(r *datastore.RunRecord) RunResponse {
	return RunResponse{
		RunID:         r.RunID,
		Start:         r.Start.UTC(),
		End:           r.End.UTC(),
		Triggers:      r.Triggers,
		Groups:        r.Groups,
		Discarded:     r.Discarded,
		FalsePositive: r.FalsePositive,
		Verified:      r.Verified,
		Detections:    r.Detections,
		Exclusions:    r.Exclusions,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func (s *Server) getRuns(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	runs, err := s.dataStore.ListRuns()
	if err != nil {
		return err
	}
	out := make([]RunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, newRunResponse(&runs[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// getRun returns the full catalog of one run.
func (s *Server) getRun(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	runID := c.Param("id")
	catalog, err := s.dataStore.LoadCatalog(runID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, output.NewCatalogView(runID, catalog))
}

func (s *Server) getBases(c echo.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}

	var stations []string
	if st := c.QueryParam("station"); st != "" {
		stations = append(stations, st)
	}
	bases, singles, err := s.dataStore.LoadBases(stations...)
	if err != nil {
		return err
	}

	out := make([]BasisResponse, 0, len(bases)+len(singles))
	for _, b := range bases {
		out = append(out, BasisResponse{
			SourceID:   b.ClusterID,
			Station:    b.Station,
			Kind:       string(b.SourceKind()),
			Members:    b.Members,
			Excluded:   b.Excluded,
			Rank:       b.Rank,
			Threshold:  b.DetectionThreshold(),
			SampleRate: b.SampleRate,
			Length:     b.WindowLength(),
		})
	}
	for _, t := range singles {
		out = append(out, BasisResponse{
			SourceID:   t.TemplateID,
			Station:    t.Station,
			Kind:       string(t.SourceKind()),
			Members:    []string{t.TemplateID},
			Rank:       1,
			Threshold:  t.DetectionThreshold(),
			SampleRate: t.SampleRate,
			Length:     t.WindowLength(),
		})
	}
	return c.JSON(http.StatusOK, out)
}
