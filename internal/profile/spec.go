// Package profile defines deployment profile specs: the image and worker
// definitions an app declares for running jobs in containers.
package profile

// Worker kinds.
const (
	WorkerKindExec = "exec" // one job per worker, invoked via container exec
	WorkerKindHTTP = "http" // persistent listener serving multiple job names
)

// Spec is a named deployment configuration owned by an app.
// Field order is fixed: the profile hash is computed over the canonical JSON
// encoding, so reordering fields changes the hash.
type Spec struct {
	Image   string   `json:"image"`
	Workers []Worker `json:"workers"`
}

// Worker declares how a profile's container responds to job invocations.
// Exec workers carry exactly one job name; HTTP workers host a command that
// listens on Port and serves every job in Jobs.
type Worker struct {
	Kind    string    `json:"kind"`
	JobName string    `json:"jobName,omitempty"` // exec kind only
	Command string    `json:"command"`
	Port    int       `json:"port,omitempty"` // http kind only
	Jobs    []HTTPJob `json:"jobs,omitempty"` // http kind only
}

// HTTPJob is one named unit of work served by an HTTP worker.
type HTTPJob struct {
	JobName               string `json:"jobName"`
	MaxPerContainer       int    `json:"maxPerContainer,omitempty"`
	CountTowardsGlobalCap bool   `json:"countTowardsGlobalCap,omitempty"`
	Priority              int    `json:"priority,omitempty"`
}

// JobDefinition is a resolved job: the job's own fields merged with the
// shared fields of the worker hosting it. For http-kind jobs the command and
// port are inherited from the worker, not duplicated per job.
type JobDefinition struct {
	JobName               string
	Kind                  string
	Command               string
	Port                  int
	MaxPerContainer       int
	CountTowardsGlobalCap bool
	Priority              int
}

// JobNames returns every job name declared in the spec, across both worker
// kinds, in declaration order.
func (s *Spec) JobNames() []string {
	var names []string
	for _, w := range s.Workers {
		switch w.Kind {
		case WorkerKindExec:
			if w.JobName != "" {
				names = append(names, w.JobName)
			}
		case WorkerKindHTTP:
			for _, j := range w.Jobs {
				names = append(names, j.JobName)
			}
		}
	}
	return names
}

// FindJob resolves a job name against the spec's flattened job list.
// Returns false if the name is not declared.
func (s *Spec) FindJob(jobName string) (JobDefinition, bool) {
	for _, w := range s.Workers {
		switch w.Kind {
		case WorkerKindExec:
			if w.JobName == jobName {
				return JobDefinition{
					JobName: w.JobName,
					Kind:    WorkerKindExec,
					Command: w.Command,
				}, true
			}
		case WorkerKindHTTP:
			for _, j := range w.Jobs {
				if j.JobName == jobName {
					return JobDefinition{
						JobName:               j.JobName,
						Kind:                  WorkerKindHTTP,
						Command:               w.Command,
						Port:                  w.Port,
						MaxPerContainer:       j.MaxPerContainer,
						CountTowardsGlobalCap: j.CountTowardsGlobalCap,
						Priority:              j.Priority,
					}, true
				}
			}
		}
	}
	return JobDefinition{}, false
}
