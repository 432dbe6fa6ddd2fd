package api

// Task type values accepted in Options.TaskType and TaskOptions.TaskType.
const (
	TaskTypeIdentity  = "identity"
	TaskTypeDirectory = "directory"
)

// Task is one unit of planned synchronization work for a single account
// and date window. Produced by the planner, consumed by the invoker.
type Task struct {
	TaskOptions *TaskOptions `json:"task_options"`
	TaskChanged *TaskChanged `json:"task_changed,omitempty"`
}

// TaskOptions identifies the account, billing partition and start marker
// for one sync task. Start is always a calendar marker (2006-01), never
// a raw timestamp.
type TaskOptions struct {
	Start              string `json:"start"`
	Database           string `json:"database"`
	AccountID          string `json:"account_id"`
	ServiceAccountID   string `json:"service_account_id,omitempty"`
	ServiceAccountName string `json:"service_account_name,omitempty"`
	IsSync             string `json:"is_sync"`
	TaskType           string `json:"task_type"`
}

// TaskChanged is a progress watermark reported back to the coordinator,
// optionally scoped to one account via Filter.
type TaskChanged struct {
	Start  string                 `json:"start"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

// TasksResponse is the output of Job.get_tasks.
type TasksResponse struct {
	Tasks   []*Task        `json:"tasks"`
	Changed []*TaskChanged `json:"changed"`
}
