package routes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	dedupV1 "frame-dedup/api/v1"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/dynamic"
)

var scheduledDedupResource = dedupV1.GroupVersion.WithResource("scheduleddedups")

type ScheduledDedupSummary struct {
	Name     string                       `json:"name"`
	Schedule string                       `json:"schedule"`
	Prefix   string                       `json:"prefix"`
	DryRun   bool                         `json:"dryRun,omitempty"`
	Status   dedupV1.ScheduledDedupStatus `json:"status"`
}

func ListScheduledDedups(dynamicClient dynamic.Interface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := r.PathValue("namespace")

		list, err := dynamicClient.Resource(scheduledDedupResource).Namespace(namespace).List(r.Context(), metav1.ListOptions{})
		if err != nil {
			slog.Error(fmt.Sprintf("failed to list scheduled dedups: %s", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		summaries := make([]ScheduledDedupSummary, 0, len(list.Items))
		for _, u := range list.Items {
			var scheduledDedup dedupV1.ScheduledDedup
			if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, &scheduledDedup); err != nil {
				slog.Error(fmt.Sprintf("failed to convert scheduled dedup: %s", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			summaries = append(summaries, ScheduledDedupSummary{
				Name:     scheduledDedup.Name,
				Schedule: scheduledDedup.Spec.Schedule,
				Prefix:   scheduledDedup.Spec.Prefix,
				DryRun:   scheduledDedup.Spec.DryRun,
				Status:   scheduledDedup.Status,
			})
		}

		writeJSON(w, summaries)
	}
}

func ReadScheduledDedup(dynamicClient dynamic.Interface) http.HandlerFunc {
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

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error(fmt.Sprintf("failed to marshal json: %s", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
