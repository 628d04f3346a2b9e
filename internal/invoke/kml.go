package invoke

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dpup/prefab/logging"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/status"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
	"github.com/dpup/rabbitmiles/server/internal/lib/trail"
	"github.com/dpup/rabbitmiles/server/internal/services"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

const kmlContentType = "application/vnd.google-earth.kml+xml"

// KMLHandler serves the trail network and matched activities as KML
type KMLHandler struct {
	activities store.ActivityStore
	geometry   services.GeometryLoader
	calculator *trail.Calculator
}

// NewKMLHandler creates a new KMLHandler
func NewKMLHandler(activities store.ActivityStore, geometry services.GeometryLoader, toleranceMeters float64) *KMLHandler {
	return &KMLHandler{
		activities: activities,
		geometry:   geometry,
		calculator: trail.NewCalculator(toleranceMeters),
	}
}

// Register adds the KML routes to the gateway mux
func (h *KMLHandler) Register(mux *runtime.ServeMux) error {
	if err := mux.HandlePath(http.MethodGet, "/api/v1/trails/kml", h.serveNetwork); err != nil {
		return err
	}
	return mux.HandlePath(http.MethodGet, "/api/v1/activities/{activity_id}/kml", h.serveActivity)
}

func (h *KMLHandler) serveNetwork(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	network, err := h.geometry.Load(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := trail.WriteNetworkKML(&buf, network); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, "trails.kml", buf.Bytes())
}

func (h *KMLHandler) serveActivity(w http.ResponseWriter, r *http.Request, params map[string]string) {
	activityID, err := strconv.ParseInt(params["activity_id"], 10, 64)
	if err != nil || activityID <= 0 {
		h.writeError(w, r, fmt.Errorf("%w: activity_id must be a positive integer", ErrBadRequest))
		return
	}

	activity, err := h.activities.GetActivity(r.Context(), activityID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var path geo.Path
	if activity.HasPolyline() {
		path = geo.DecodePath(*activity.Polyline)
	}

	var flags []bool
	if !path.Empty() {
		network, err := h.geometry.Load(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		flags = h.calculator.Classify(path, network)
	}

	name := activity.Name
	if name == "" {
		name = fmt.Sprintf("Activity %d", activity.ID)
	}

	var buf bytes.Buffer
	if err := trail.WriteActivityKML(&buf, name, path, flags); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.write(w, r, fmt.Sprintf("activity-%d.kml", activity.ID), buf.Bytes())
}

func (h *KMLHandler) write(w http.ResponseWriter, r *http.Request, filename string, data []byte) {
	w.Header().Set("Content-Type", kmlContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	if _, err := w.Write(data); err != nil {
		logging.Warnw(r.Context(), "Failed to write KML", "error", err)
	}
}

func (h *KMLHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st, _ := status.FromError(StatusFromError(err))
	code := runtime.HTTPStatusFromCode(st.Code())
	if code >= http.StatusInternalServerError {
		logging.Errorw(r.Context(), "KML export failed", "path", r.URL.Path, "error", err)
	}
	http.Error(w, st.Message(), code)
}
