// Package pipeline streams one task's raw billing objects through the
// classifier as a lazy sequence of normalized batches. Peak memory is
// one decoded object plus one batch; parallelism across tasks belongs
// to the invoker.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/bucketpath"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/classify"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/awss3"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/datewindow"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/fetch"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
)

// ObjectStore is the object-store collaborator surface the pipeline
// consumes.
type ObjectStore interface {
	ListObjects(ctx context.Context, prefix, delimiter string) (*awss3.Listing, error)
	ReadObject(ctx context.Context, key string) ([]byte, error)
}

// Coordinator is the coordinating-service surface needed for the
// first-sync state transition.
type Coordinator interface {
	GetServiceAccount(ctx context.Context, serviceAccountID string) (*api.ServiceAccount, error)
	UpdateServiceAccountTags(ctx context.Context, serviceAccountID string, tags map[string]string) error
}

// Pipeline builds normalized-batch streams for tasks.
type Pipeline struct {
	store       ObjectStore
	coordinator Coordinator
	log         zerolog.Logger
	now         func() time.Time
}

func New(store ObjectStore, coordinator Coordinator, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		coordinator: coordinator,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Stream validates the task and returns its lazy batch stream.
//
// For a first-sync identity task the is_sync tag is flipped before any
// data is streamed: a crash mid-stream must still leave the account
// marked as synced so the next pass plans it incrementally.
func (p *Pipeline) Stream(ctx context.Context, task *api.TaskOptions, includeCredit bool) (*Stream, error) {
	if err := checkTaskOptions(task); err != nil {
		return nil, err
	}

	if task.TaskType != api.TaskTypeDirectory && task.IsSync == "false" {
		if err := p.markSynced(ctx, task.ServiceAccountID); err != nil {
			return nil, err
		}
	}

	months, err := datewindow.ExpandMonths(task.Start, p.now())
	if err != nil {
		return nil, err
	}

	return &Stream{
		pipeline:   p,
		task:       task,
		classifier: classify.New(task.AccountID, includeCredit, p.log),
		fetcher:    fetch.New(p.store, p.log),
		months:     months,
	}, nil
}

// markSynced performs the read-modify-write of the account's sync tags.
// There is no version check; concurrent first syncs for the same account
// are an invoker-enforced impossibility.
func (p *Pipeline) markSynced(ctx context.Context, serviceAccountID string) error {
	account, err := p.coordinator.GetServiceAccount(ctx, serviceAccountID)
	if err != nil {
		return err
	}

	tags := map[string]string{}
	for k, v := range account.Tags {
		tags[k] = v
	}
	tags["is_sync"] = "true"

	p.log.Info().Str("service_account_id", serviceAccountID).Msg("marking account synced before streaming")

	return p.coordinator.UpdateServiceAccountTags(ctx, serviceAccountID, tags)
}

func checkTaskOptions(task *api.TaskOptions) error {
	if task == nil {
		return perrors.NewMissingParameter("task_options")
	}
	if task.Start == "" {
		return perrors.NewMissingParameter("task_options.start")
	}
	if task.Database == "" {
		return perrors.NewMissingParameter("task_options.database")
	}
	if task.IsSync == "" {
		return perrors.NewMissingParameter("task_options.is_sync")
	}
	if task.TaskType != api.TaskTypeDirectory {
		if task.AccountID == "" {
			return perrors.NewMissingParameter("task_options.account_id")
		}
		if task.ServiceAccountID == "" {
			return perrors.NewMissingParameter("task_options.service_account_id")
		}
	}
	return nil
}

// Stream yields normalized batches for one task. Usage follows the
// scanner pattern: Next, then Batch, then Err after Next returns false.
type Stream struct {
	pipeline   *Pipeline
	task       *api.TaskOptions
	classifier *classify.Classifier
	fetcher    *fetch.Fetcher

	months []string
	keys   []string
	pages  *fetch.Stream

	month      string
	monthTotal decimal.Decimal

	batch        *api.CostBatch
	err          error
	sentinelSent bool
	done         bool
}

// Next advances to the next batch. After all periods are exhausted one
// final batch with empty results is yielded as the completion sentinel,
// then Next reports false.
func (s *Stream) Next(ctx context.Context) bool {
	if s.done {
		return false
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}

		if s.pages != nil {
			page, ok := s.pages.Next()
			if !ok {
				s.pages = nil
				continue
			}

			records, err := s.classifier.Batch(page)
			if err != nil {
				return s.fail(err)
			}
			if len(records) == 0 {
				// A fully filtered page must not surface: an empty
				// results set on the wire is the terminal sentinel.
				continue
			}
			for _, record := range records {
				s.monthTotal = s.monthTotal.Add(decimal.NewFromFloat(record.Cost))
			}
			s.batch = &api.CostBatch{Results: records}
			return true
		}

		if len(s.keys) > 0 {
			key := s.keys[0]
			s.keys = s.keys[1:]

			pages, err := s.fetcher.Fetch(ctx, key)
			if err != nil {
				return s.fail(err)
			}
			s.pages = pages
			continue
		}

		if len(s.months) > 0 {
			s.closeMonth()
			s.month = s.months[0]
			s.months = s.months[1:]

			if err := s.listMonth(ctx); err != nil {
				return s.fail(err)
			}
			continue
		}

		s.closeMonth()

		if !s.sentinelSent {
			s.sentinelSent = true
			s.batch = &api.CostBatch{Results: []*api.CostRecord{}}
			return true
		}

		s.done = true
		return false
	}
}

func (s *Stream) listMonth(ctx context.Context) error {
	year, month := s.month[:4], s.month[5:]
	prefix := bucketpath.Month(s.task.Database, s.task.AccountID, year, month)

	listing, err := s.pipeline.store.ListObjects(ctx, prefix, "")
	if err != nil {
		return err
	}

	s.keys = s.keys[:0]
	for _, obj := range listing.Objects {
		if obj.Size == 0 {
			s.pipeline.log.Debug().Str("key", obj.Key).Msg("skipping empty billing object")
			continue
		}
		s.keys = append(s.keys, obj.Key)
	}
	return nil
}

// closeMonth logs the exact cost total of the finished period.
func (s *Stream) closeMonth() {
	if s.month == "" {
		return
	}
	s.pipeline.log.Info().
		Str("account_id", s.task.AccountID).
		Str("period", s.month).
		Str("cost_total", s.monthTotal.String()).
		Msg("billing period streamed")
	s.month = ""
	s.monthTotal = decimal.Zero
}

func (s *Stream) fail(err error) bool {
	s.err = err
	s.done = true
	return false
}

// Batch returns the batch produced by the last successful Next.
func (s *Stream) Batch() *api.CostBatch {
	return s.batch
}

// Err reports the error that terminated the stream, if any. Batches
// yielded before the failure are not retracted.
func (s *Stream) Err() error {
	return s.err
}
