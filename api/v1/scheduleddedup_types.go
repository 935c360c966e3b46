package v1

import (
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ScheduledDedupSpec defines the desired state of ScheduledDedup
type ScheduledDedupSpec struct {
	// Schedule in Cron format, see https://en.wikipedia.org/wiki/Cron.
	Schedule string `json:"schedule"`
	// Prefix is the storage prefix (directory or S3 key prefix) holding the frames
	Prefix string `json:"prefix"`
	// Extensions lists the file extensions treated as frames
	// +kubebuilder:default={".png"}
	Extensions []string `json:"extensions,omitempty"`
	// MinContourArea is the smallest changed region, in pixels at the canonical resolution, that counts towards the score
	// +kubebuilder:validation:Minimum=0
	// +kubebuilder:default=3000
	MinContourArea *float64 `json:"minContourArea,omitempty"`
	// Threshold is the score below which the earlier frame of a pair is deleted
	// +kubebuilder:validation:Minimum=0
	// +kubebuilder:default=4025
	Threshold *float64 `json:"threshold,omitempty"`
	// BlurKernelSizes are the odd Gaussian kernel sizes applied in order
	BlurKernelSizes []int `json:"blurKernelSizes,omitempty"`
	// Border is the "left,top,right,bottom" percentage margin masked out before comparison
	// +kubebuilder:default="5,10,5,0"
	Border string `json:"border,omitempty"`
	// Engine selects the change detector implementation. The opencv engine is
	// only compiled into binaries built with -tags opencv and is not accepted here.
	// +kubebuilder:validation:Enum=native
	// +kubebuilder:default="native"
	Engine string `json:"engine,omitempty"`
	// DryRun records deletions without removing anything
	DryRun bool `json:"dryRun,omitempty"`
	// SkipUndecodable skips frames that fail to decode instead of failing the run
	SkipUndecodable bool `json:"skipUndecodable,omitempty"`
	// Quarantine is the prefix near duplicates are copied to before deletion
	Quarantine string `json:"quarantine,omitempty"`
}

// ScheduledDedupStatus defines the observed state of ScheduledDedup
type ScheduledDedupStatus struct {
	// ReportURL is the storage URL of the JSON report of the last run
	ReportURL string `json:"reportUrl,omitempty"`
	// Frames is the number of frames found by the last run
	Frames int `json:"frames"`
	// Evaluated is the number of pairs compared by the last run
	Evaluated int `json:"evaluated"`
	// Deleted is the number of frames deleted by the last run
	Deleted int `json:"deleted"`
	// Skipped is the number of undecodable frames skipped by the last run
	Skipped int `json:"skipped"`
	// LastRunTime is the time when the last run finished
	LastRunTime *metaV1.Time `json:"lastRunTime,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status

// ScheduledDedup is the schema for the scheduleddedups API
type ScheduledDedup struct {
	metaV1.TypeMeta   `json:",inline"`
	metaV1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ScheduledDedupSpec   `json:"spec,omitempty"`
	Status ScheduledDedupStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ScheduledDedupList contains a list of ScheduledDedup
type ScheduledDedupList struct {
	metaV1.TypeMeta `json:",inline"`
	metaV1.ListMeta `json:"metadata,omitempty"`
	Items           []ScheduledDedup `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ScheduledDedup{}, &ScheduledDedupList{})
}
