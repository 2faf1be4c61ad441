package httptransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"twovue/internal/detect"
)

const maxImageBody = 16 << 20

type Labeler interface {
	Detect(ctx context.Context, image []byte) (detect.Result, error)
}

type detectRequest struct {
	Image string `json:"image"`
}

// DetectHandler accepts a base64 image (optionally a data URL) and returns
// the labels found in it.
func DetectHandler(labeler Labeler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		encoded := strings.TrimSpace(req.Image)
		if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
			encoded = encoded[i+1:]
		}
		image, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(image) == 0 {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_image")
			return
		}
		res, err := labeler.Detect(r.Context(), image)
		if err != nil {
			WriteHTTPError(w, http.StatusServiceUnavailable, "detector_unavailable")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
