package views

import (
	"time"

	"github.com/haatos/runkeeper/internal/build"
	"github.com/haatos/runkeeper/internal/depgraph"
)

type RecordRef struct {
	Job         string `json:"job"`
	Number      int64  `json:"number"`
	DisplayName string `json:"display_name"`
}

// LinkView is one artifact usage fact with the names both records had
// when it was recorded.
type LinkView struct {
	Producer     RecordRef `json:"producer"`
	Consumer     RecordRef `json:"consumer"`
	ProducerName string    `json:"producer_name"`
	ConsumerName string    `json:"consumer_name"`
	Artifact     string    `json:"artifact"`
}

type BuildView struct {
	Job           string        `json:"job"`
	Number        int64         `json:"number"`
	DisplayName   string        `json:"display_name"`
	Status        string        `json:"status"`
	Result        string        `json:"result"`
	Keep          bool          `json:"keep"`
	CanToggleKeep bool          `json:"can_toggle_keep"`
	CanDelete     bool          `json:"can_delete"`
	DeleteReason  string        `json:"delete_reason,omitempty"`
	Badges        []build.Badge `json:"badges"`
	Executor      string        `json:"executor,omitempty"`
	CreatedOn     time.Time     `json:"created_on"`
	StartedOn     *time.Time    `json:"started_on"`
	EndedOn       *time.Time    `json:"ended_on"`
}

type RunView struct {
	BuildView
	Upstream       []RecordRef   `json:"upstream"`
	Downstream     []RecordRef   `json:"downstream"`
	Links          []LinkView    `json:"links"`
	Artifacts      []build.Entry `json:"artifacts"`
	ArtifactsError string        `json:"artifacts_error,omitempty"`
}

type JobView struct {
	Name             string      `json:"name"`
	DisplayName      string      `json:"display_name"`
	KeepDependencies bool        `json:"keep_dependencies"`
	Artifacts        []string    `json:"artifacts"`
	Builds           []BuildView `json:"builds"`
}

func NewRecordRef(r *build.Record) RecordRef {
	return RecordRef{
		Job:         r.Job().Name(),
		Number:      r.Number(),
		DisplayName: r.FullDisplayName(),
	}
}

func RecordRefs(records []*build.Record) []RecordRef {
	refs := make([]RecordRef, 0, len(records))
	for _, r := range records {
		refs = append(refs, NewRecordRef(r))
	}
	return refs
}

func LinkViews(links []depgraph.Link) []LinkView {
	views := make([]LinkView, 0, len(links))
	for _, l := range links {
		views = append(views, LinkView{
			Producer:     NewRecordRef(l.Producer),
			Consumer:     NewRecordRef(l.Consumer),
			ProducerName: l.ProducerName,
			ConsumerName: l.ConsumerName,
			Artifact:     l.Artifact,
		})
	}
	return views
}
