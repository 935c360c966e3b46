package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dedupV1 "frame-dedup/api/v1"
	"frame-dedup/internal/storage"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
)

// ReportRequest is sent by distributed workers once a run has finished.
type ReportRequest struct {
	ReportURL string `json:"reportURL"`
	Frames    int    `json:"frames"`
	Evaluated int    `json:"evaluated"`
	Deleted   int    `json:"deleted"`
	Skipped   int    `json:"skipped"`
}

// GetReport serves the JSON report of the last run of a ScheduledDedup.
func GetReport(dynamicClient dynamic.Interface, storageClient storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := dynamicClient.Resource(scheduledDedupResource).Namespace(r.PathValue("namespace")).Get(r.Context(), r.PathValue("name"), metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				http.NotFound(w, r)
				return
			}
			slog.Error(fmt.Sprintf("failed to get scheduled dedup: %s", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		var scheduledDedup dedupV1.ScheduledDedup
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, &scheduledDedup); err != nil {
			slog.Error(fmt.Sprintf("failed to convert scheduled dedup: %s", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if scheduledDedup.Status.ReportURL == "" {
			http.NotFound(w, r)
			return
		}

		data, err := storageClient.Get(r.Context(), scheduledDedup.Status.ReportURL)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			slog.Error(fmt.Sprintf("failed to get report: %s", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// UpdateReport records the outcome of a distributed run in the status
// subresource.
func UpdateReport(dynamicClient dynamic.Interface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			slog.Error(fmt.Sprintf("failed to read request body: %s", err))
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		var request ReportRequest
		if err := json.Unmarshal(body, &request); err != nil {
			slog.Error(fmt.Sprintf("failed to unmarshal request: %s", err))
			http.Error(w, "Invalid JSON format", http.StatusBadRequest)
			return
		}

		status := dedupV1.ScheduledDedupStatus{
			ReportURL:   request.ReportURL,
			Frames:      request.Frames,
			Evaluated:   request.Evaluated,
			Deleted:     request.Deleted,
			Skipped:     request.Skipped,
			LastRunTime: &metav1.Time{Time: time.Now()},
		}

		patchData, err := json.Marshal(map[string]interface{}{
			"status": status,
		})
		if err != nil {
			slog.Error(fmt.Sprintf("failed to marshal patch data: %s", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		u, err := dynamicClient.Resource(scheduledDedupResource).Namespace(r.PathValue("namespace")).Patch(
			r.Context(),
			r.PathValue("name"),
			types.MergePatchType,
			patchData,
			metav1.PatchOptions{},
			"status",
		)
		if err != nil {
			if apierrors.IsNotFound(err) {
				http.NotFound(w, r)
				return
			}
			slog.Error(fmt.Sprintf("failed to patch status: %s", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		b, err := u.MarshalJSON()
		if err != nil {
			slog.Error(fmt.Sprintf("failed to marshal json: %s", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}
