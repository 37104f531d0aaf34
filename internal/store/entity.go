// Package store defines the persistent entities Retz schedules work
// against and the interfaces the postgres-backed implementation
// satisfies. The Store exclusively owns these entities; every other
// component reads them or proposes mutations, only the Store writes.
package store

import "encoding/json"

// JobState is a Job's position in the lifecycle graph of §4.B.
type JobState string

const (
	JobQueued   JobState = "QUEUED"
	JobStarting JobState = "STARTING"
	JobStarted  JobState = "STARTED"
	JobFinished JobState = "FINISHED"
	JobKilled   JobState = "KILLED"
)

// User is the principal owning Applications. Created once; mutated
// only to toggle Enabled. Never deleted (soft-disable only).
type User struct {
	KeyID   string `json:"keyId"`
	Secret  string `json:"secret"`
	Enabled bool   `json:"enabled"`
	Info    string `json:"info"`

	// Unknown holds fields a future version of this struct doesn't
	// know about yet, so JSON round-trips never silently drop data.
	Unknown map[string]json.RawMessage `json:"-"`
}

type userWire struct {
	KeyID   string `json:"keyId"`
	Secret  string `json:"secret"`
	Enabled bool   `json:"enabled"`
	Info    string `json:"info"`
}

var userFields = map[string]bool{"keyId": true, "secret": true, "enabled": true, "info": true}

func (u User) MarshalJSON() ([]byte, error) {
	return marshalWithUnknown(userWire{u.KeyID, u.Secret, u.Enabled, u.Info}, u.Unknown)
}

func (u *User) UnmarshalJSON(data []byte) error {
	var w userWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	unknown, err := extractUnknown(data, userFields)
	if err != nil {
		return err
	}
	u.KeyID, u.Secret, u.Enabled, u.Info = w.KeyID, w.Secret, w.Enabled, w.Info
	u.Unknown = unknown
	return nil
}

// Application is a reusable execution environment identified by
// Appid and owned by a User (Owner == User.KeyID).
type Application struct {
	Appid string `json:"appid"`
	Owner string `json:"owner"`

	// Definition is the opaque container image / files / env payload.
	// It is kept as a raw map so fields this port doesn't enumerate
	// round-trip untouched, per §6's "preserve unknown fields" rule.
	Definition map[string]interface{} `json:"definition,omitempty"`
}

// Resources is the quantity of cluster resources a Job requires, or
// an Offer makes available.
type Resources struct {
	Cpu   int `json:"cpu"`
	MemMB int `json:"memMB"`
	Gpu   int `json:"gpu"`
	Ports int `json:"ports"`
}

// Job is a single execution request within an Application.
type Job struct {
	ID       int64    `json:"id"`
	Appid    string   `json:"appid"`
	Name     string   `json:"name"`
	Cmd      string   `json:"cmd"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags,omitempty"`

	TaskID *string  `json:"taskId,omitempty"`
	State  JobState `json:"state"`

	Resources Resources `json:"resources"`

	URL *string `json:"url,omitempty"`

	// Finished is set on the terminal transition (FINISHED or KILLED).
	// ISO-8601, nil while the Job is non-terminal.
	Finished *string `json:"finished,omitempty"`

	Retry int `json:"retry"`

	// StartedAt is stamped by `starting`; not part of spec.md's wire
	// contract but useful for observability.
	StartedAt *string `json:"startedAt,omitempty"`

	Unknown map[string]json.RawMessage `json:"-"`
}

type jobWire struct {
	ID        int64     `json:"id"`
	Appid     string    `json:"appid"`
	Name      string    `json:"name"`
	Cmd       string    `json:"cmd"`
	Priority  int       `json:"priority"`
	Tags      []string  `json:"tags,omitempty"`
	TaskID    *string   `json:"taskId,omitempty"`
	State     JobState  `json:"state"`
	Resources Resources `json:"resources"`
	URL       *string   `json:"url,omitempty"`
	Finished  *string   `json:"finished,omitempty"`
	Retry     int       `json:"retry"`
	StartedAt *string   `json:"startedAt,omitempty"`
}

var jobFields = map[string]bool{
	"id": true, "appid": true, "name": true, "cmd": true, "priority": true,
	"tags": true, "taskId": true, "state": true, "resources": true,
	"url": true, "finished": true, "retry": true, "startedAt": true,
}

func (j Job) MarshalJSON() ([]byte, error) {
	w := jobWire{j.ID, j.Appid, j.Name, j.Cmd, j.Priority, j.Tags, j.TaskID,
		j.State, j.Resources, j.URL, j.Finished, j.Retry, j.StartedAt}
	return marshalWithUnknown(w, j.Unknown)
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var w jobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	unknown, err := extractUnknown(data, jobFields)
	if err != nil {
		return err
	}
	j.ID, j.Appid, j.Name, j.Cmd, j.Priority = w.ID, w.Appid, w.Name, w.Cmd, w.Priority
	j.Tags, j.TaskID, j.State, j.Resources = w.Tags, w.TaskID, w.State, w.Resources
	j.URL, j.Finished, j.Retry, j.StartedAt = w.URL, w.Finished, w.Retry, w.StartedAt
	j.Unknown = unknown
	return nil
}

// HasTag reports whether t is present in the Job's tag set.
func (j *Job) HasTag(t string) bool {
	for _, x := range j.Tags {
		if x == t {
			return true
		}
	}
	return false
}

// marshalWithUnknown encodes wire into a JSON object and overlays any
// extra fields captured on a previous decode, so round-tripping a
// partially-understood entity never loses data.
func marshalWithUnknown(wire interface{}, unknown map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	if len(unknown) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range unknown {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// extractUnknown returns every top-level field of data not named in
// known.
func extractUnknown(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}

// Property is a singleton key/value row for scheduler-global metadata.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const FrameworkIDKey = "frameworkId"
