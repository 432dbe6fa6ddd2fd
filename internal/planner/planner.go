// Package planner turns the coordinator's account inventory and the
// last-synchronized watermark into independent sync tasks. One planning
// pass emits exactly one task per account.
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/bucketpath"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/awss3"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/datewindow"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
)

// DefaultDatabase is the billing partition used when neither the
// project nor the account carries a database tag.
const DefaultDatabase = "MZC"

// accountFilterKey scopes a watermark to one account on the coordinator
// side.
const accountFilterKey = "additional_info.Account ID"

// Coordinator is the subset of the coordinating service the planner
// reads from.
type Coordinator interface {
	ListProjects(ctx context.Context, domainID string) (*api.ProjectList, error)
	ListServiceAccounts(ctx context.Context, projectID string) (*api.ServiceAccountList, error)
}

// PrefixLister lists billing-bucket prefixes for directory planning.
type PrefixLister interface {
	ListObjects(ctx context.Context, prefix, delimiter string) (*awss3.Listing, error)
}

// Planner builds the task list for one planning pass.
type Planner struct {
	coordinator Coordinator
	lister      PrefixLister
	log         zerolog.Logger
	now         func() time.Time
}

// New builds a planner. lister may be nil when directory planning is
// not used.
func New(coordinator Coordinator, lister PrefixLister, log zerolog.Logger) *Planner {
	return &Planner{
		coordinator: coordinator,
		lister:      lister,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetTasks plans the sync tasks and watermarks for one invocation.
func (p *Planner) GetTasks(ctx context.Context, req *api.GetTasksRequest) (*api.TasksResponse, error) {
	options := req.Options
	if options == nil {
		options = &api.Options{}
	}

	lastSynced, err := parseLastSynchronizedAt(req.LastSynchronizedAt)
	if err != nil {
		return nil, err
	}

	resyncDays := int(options.ResyncDays)
	startMonth, err := datewindow.ComputeStart(req.Start, lastSynced, resyncDays, p.now(), datewindow.Monthly)
	if err != nil {
		return nil, err
	}

	if options.TaskType == api.TaskTypeDirectory {
		return p.directoryTasks(ctx, req, options, startMonth)
	}
	return p.identityTasks(ctx, req, resyncDays, startMonth)
}

// identityTasks plans one task per coordinator service account. An
// account that never finished a first sync gets its own start marker
// and an account-scoped watermark so the coordinator can track its
// catch-up independently.
func (p *Planner) identityTasks(ctx context.Context, req *api.GetTasksRequest, resyncDays int, startMonth string) (*api.TasksResponse, error) {
	response := emptyResponse()

	projects, err := p.coordinator.ListProjects(ctx, req.DomainID)
	if err != nil {
		return nil, err
	}
	if projects.TotalCount == 0 || len(projects.Results) == 0 {
		// An unconfigured domain is a valid terminal state, not an error.
		p.log.Debug().Str("domain_id", req.DomainID).Msg("no project tagged with domain, nothing to plan")
		return response, nil
	}

	project := projects.Results[0]
	projectDatabase := project.Tags["database"]
	if projectDatabase == "" {
		projectDatabase = DefaultDatabase
	}

	accounts, err := p.coordinator.ListServiceAccounts(ctx, project.ProjectID)
	if err != nil {
		return nil, err
	}

	for _, account := range accounts.Results {
		isSync := account.Tags["is_sync"]
		if isSync != "true" {
			// Unknown sync states are treated as "needs full sync".
			isSync = "false"
		}

		database := account.Tags["database"]
		if database == "" {
			database = projectDatabase
		}

		p.log.Debug().
			Str("service_account_id", account.ServiceAccountID).
			Str("account_id", account.Data.AccountID).
			Str("is_sync", isSync).
			Msg("planning account")

		taskOptions := &api.TaskOptions{
			IsSync:             isSync,
			ServiceAccountID:   account.ServiceAccountID,
			ServiceAccountName: account.Name,
			AccountID:          account.Data.AccountID,
			Database:           database,
			TaskType:           api.TaskTypeIdentity,
		}

		var taskChanged *api.TaskChanged
		if isSync == "false" {
			// A first sync always starts from the beginning of the
			// requested window, regardless of last_synchronized_at.
			firstSyncMonth, err := datewindow.ComputeStart(req.Start, nil, resyncDays, p.now(), datewindow.Monthly)
			if err != nil {
				return nil, err
			}
			taskOptions.Start = firstSyncMonth
			taskChanged = &api.TaskChanged{
				Start:  firstSyncMonth,
				Filter: map[string]interface{}{accountFilterKey: account.Data.AccountID},
			}
		} else {
			taskOptions.Start = startMonth
			taskChanged = &api.TaskChanged{Start: startMonth}
		}

		response.Tasks = append(response.Tasks, &api.Task{
			TaskOptions: taskOptions,
			TaskChanged: taskChanged,
		})
	}

	response.Changed = append(response.Changed, &api.TaskChanged{Start: startMonth})

	return response, nil
}

// directoryTasks plans directly from the bucket layout: accounts come
// from the secret or from the account_id= folders under the database
// partition. Directory accounts have no coordinator sync state, so every
// task is planned as already-synced.
func (p *Planner) directoryTasks(ctx context.Context, req *api.GetTasksRequest, options *api.Options, startMonth string) (*api.TasksResponse, error) {
	response := emptyResponse()

	database := options.Database
	if database == "" {
		database = DefaultDatabase
	}

	var accounts []string
	if req.SecretData != nil {
		accounts = req.SecretData.Accounts
	}
	if len(accounts) == 0 {
		if p.lister == nil {
			return nil, fmt.Errorf("directory planning without accounts requires a billing bucket session")
		}

		path := bucketpath.Database(database)
		listing, err := p.lister.ListObjects(ctx, path, "/")
		if err != nil {
			return nil, err
		}

		for _, prefix := range listing.CommonPrefixes {
			relative := strings.TrimLeft(strings.TrimPrefix(prefix, path), "/")
			if relative == "" {
				continue
			}
			folder := strings.SplitN(relative, "/", 2)[0]
			if !strings.HasPrefix(folder, "account_id=") {
				continue
			}
			accountID := strings.SplitN(folder, "=", 2)[1]
			if strings.TrimSpace(accountID) != "" {
				accounts = append(accounts, accountID)
			}
		}
	}

	for _, accountID := range accounts {
		response.Tasks = append(response.Tasks, &api.Task{
			TaskOptions: &api.TaskOptions{
				AccountID: accountID,
				Database:  database,
				Start:     startMonth,
				IsSync:    "true",
				TaskType:  api.TaskTypeDirectory,
			},
			TaskChanged: &api.TaskChanged{
				Start:  startMonth,
				Filter: map[string]interface{}{accountFilterKey: accountID},
			},
		})
	}

	response.Changed = append(response.Changed, &api.TaskChanged{Start: startMonth})

	return response, nil
}

func emptyResponse() *api.TasksResponse {
	return &api.TasksResponse{
		Tasks:   []*api.Task{},
		Changed: []*api.TaskChanged{},
	}
}

func parseLastSynchronizedAt(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, perrors.NewInvalidParameter("last_synchronized_at", "must be an ISO-8601 timestamp")
}
