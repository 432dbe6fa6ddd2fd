package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/awss3"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/fetch"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
)

type fakeStore struct {
	listings map[string]*awss3.Listing
	objects  map[string][]byte
	listed   []string
}

func (f *fakeStore) ListObjects(_ context.Context, prefix, _ string) (*awss3.Listing, error) {
	f.listed = append(f.listed, prefix)
	if l, ok := f.listings[prefix]; ok {
		return l, nil
	}
	return &awss3.Listing{}, nil
}

func (f *fakeStore) ReadObject(_ context.Context, key string) ([]byte, error) {
	return f.objects[key], nil
}

type fakeCoordinator struct {
	account *api.ServiceAccount
	updated map[string]string
	gets    int
}

func (f *fakeCoordinator) GetServiceAccount(_ context.Context, _ string) (*api.ServiceAccount, error) {
	f.gets++
	return f.account, nil
}

func (f *fakeCoordinator) UpdateServiceAccountTags(_ context.Context, _ string, tags map[string]string) error {
	f.updated = tags
	return nil
}

func sp(s string) *string   { return &s }
func fp(f float64) *float64 { return &f }

func encodeRows(t *testing.T, rows []fetch.BillingRow) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := parquet.Write[fetch.BillingRow](&buf, rows); err != nil {
		t.Fatalf("write parquet fixture: %v", err)
	}
	return buf.Bytes()
}

func billingRow(service string, cost float64) fetch.BillingRow {
	return fetch.BillingRow{
		UsageDate:     sp("2024-05"),
		Region:        sp("USE1"),
		ServiceCode:   sp(service),
		UsageType:     sp("Usage"),
		UsageQuantity: fp(1),
		UsageCost:     fp(cost),
	}
}

func fixedPipeline(store ObjectStore, coordinator Coordinator) *Pipeline {
	p := New(store, coordinator, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) }
	return p
}

func identityTask(isSync string) *api.TaskOptions {
	return &api.TaskOptions{
		Start:            "2024-05",
		Database:         "MZC",
		AccountID:        "111111111111",
		ServiceAccountID: "sa-1",
		IsSync:           isSync,
		TaskType:         api.TaskTypeIdentity,
	}
}

func TestStreamYieldsBatchesAndSentinel(t *testing.T) {
	store := &fakeStore{
		listings: map[string]*awss3.Listing{
			"SPACE_ONE/billing/database=MZC/account_id=111111111111/year=2024/month=05": {
				Objects: []awss3.Object{
					{Key: "may/part-0.parquet", Size: 1024},
					{Key: "may/empty.parquet", Size: 0},
				},
			},
		},
		objects: map[string][]byte{
			"may/part-0.parquet": encodeRows(t, []fetch.BillingRow{
				billingRow("AmazonEC2", 1.25),
				billingRow("AmazonS3", 0.75),
			}),
		},
	}

	stream, err := fixedPipeline(store, &fakeCoordinator{}).Stream(context.Background(), identityTask("true"), false)
	if err != nil {
		t.Fatal(err)
	}

	var batches []*api.CostBatch
	for stream.Next(context.Background()) {
		batches = append(batches, stream.Batch())
	}
	if err := stream.Err(); err != nil {
		t.Fatal(err)
	}

	// One data batch plus the terminal sentinel.
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(batches[0].Results) != 2 {
		t.Errorf("data batch has %d records, want 2", len(batches[0].Results))
	}
	if len(batches[1].Results) != 0 {
		t.Error("final batch must be the empty sentinel")
	}

	// Both months of the window were listed: May and June.
	if len(store.listed) != 2 {
		t.Errorf("listed prefixes = %v, want one per period", store.listed)
	}
	for _, prefix := range store.listed {
		if !strings.Contains(prefix, "account_id=111111111111") {
			t.Errorf("listing not scoped to account: %s", prefix)
		}
	}
}

func TestStreamMarksFirstSyncBeforeStreaming(t *testing.T) {
	coordinator := &fakeCoordinator{
		account: &api.ServiceAccount{
			ServiceAccountID: "sa-1",
			Tags:             map[string]string{"is_sync": "false", "database": "MZC"},
		},
	}

	_, err := fixedPipeline(&fakeStore{}, coordinator).Stream(context.Background(), identityTask("false"), false)
	if err != nil {
		t.Fatal(err)
	}

	// The tag flip happens at stream construction, before any batch is
	// pulled, and preserves unrelated tags.
	if coordinator.updated == nil {
		t.Fatal("first-sync task did not mutate sync state")
	}
	if coordinator.updated["is_sync"] != "true" {
		t.Errorf("is_sync = %q, want true", coordinator.updated["is_sync"])
	}
	if coordinator.updated["database"] != "MZC" {
		t.Error("unrelated tags must survive the read-modify-write")
	}
}

func TestStreamSyncedTaskSkipsMutation(t *testing.T) {
	coordinator := &fakeCoordinator{}

	_, err := fixedPipeline(&fakeStore{}, coordinator).Stream(context.Background(), identityTask("true"), false)
	if err != nil {
		t.Fatal(err)
	}
	if coordinator.gets != 0 || coordinator.updated != nil {
		t.Error("incremental task must not touch sync state")
	}
}

func TestStreamValidatesTaskOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*api.TaskOptions)
	}{
		{"task_options.start", func(o *api.TaskOptions) { o.Start = "" }},
		{"task_options.database", func(o *api.TaskOptions) { o.Database = "" }},
		{"task_options.is_sync", func(o *api.TaskOptions) { o.IsSync = "" }},
		{"task_options.account_id", func(o *api.TaskOptions) { o.AccountID = "" }},
		{"task_options.service_account_id", func(o *api.TaskOptions) { o.ServiceAccountID = "" }},
	}

	p := fixedPipeline(&fakeStore{}, &fakeCoordinator{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := identityTask("true")
			tt.mutate(task)
			_, err := p.Stream(context.Background(), task, false)
			if perrors.CodeOf(err) != perrors.ErrCodeRequiredParameter {
				t.Errorf("error = %v, want missing %s", err, tt.name)
			}
		})
	}
}

func TestStreamDropsCreditRecords(t *testing.T) {
	store := &fakeStore{
		listings: map[string]*awss3.Listing{
			"SPACE_ONE/billing/database=MZC/account_id=111111111111/year=2024/month=05": {
				Objects: []awss3.Object{{Key: "may/part-0.parquet", Size: 512}},
			},
		},
		objects: map[string][]byte{
			"may/part-0.parquet": encodeRows(t, []fetch.BillingRow{
				billingRow("AmazonEC2", 1),
				billingRow("Credit", -1),
				billingRow("AmazonS3", 1),
			}),
		},
	}

	stream, err := fixedPipeline(store, &fakeCoordinator{}).Stream(context.Background(), identityTask("true"), false)
	if err != nil {
		t.Fatal(err)
	}

	if !stream.Next(context.Background()) {
		t.Fatalf("expected a data batch, err=%v", stream.Err())
	}
	if got := len(stream.Batch().Results); got != 2 {
		t.Errorf("batch of 3 rows with 1 credit row yielded %d records, want 2", got)
	}
}

func TestStreamSkipsFullyFilteredPages(t *testing.T) {
	store := &fakeStore{
		listings: map[string]*awss3.Listing{
			"SPACE_ONE/billing/database=MZC/account_id=111111111111/year=2024/month=05": {
				Objects: []awss3.Object{
					{Key: "may/credits.parquet", Size: 256},
					{Key: "may/part-0.parquet", Size: 512},
				},
			},
		},
		objects: map[string][]byte{
			"may/credits.parquet": encodeRows(t, []fetch.BillingRow{
				billingRow("Credit", -1),
			}),
			"may/part-0.parquet": encodeRows(t, []fetch.BillingRow{
				billingRow("AmazonEC2", 1),
			}),
		},
	}

	stream, err := fixedPipeline(store, &fakeCoordinator{}).Stream(context.Background(), identityTask("true"), false)
	if err != nil {
		t.Fatal(err)
	}

	var batches []*api.CostBatch
	for stream.Next(context.Background()) {
		batches = append(batches, stream.Batch())
	}
	if err := stream.Err(); err != nil {
		t.Fatal(err)
	}

	// The credits-only object classifies to zero records. Yielding it
	// would put an empty results set on the wire ahead of real data,
	// and consumers treat empty results as end-of-stream.
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want data batch plus sentinel", len(batches))
	}
	if len(batches[0].Results) != 1 {
		t.Errorf("first batch has %d records, want 1", len(batches[0].Results))
	}
	if len(batches[1].Results) != 0 {
		t.Error("final batch must be the empty sentinel")
	}
}

func TestStreamFailsFastOnMalformedRecord(t *testing.T) {
	broken := billingRow("AmazonEC2", 1)
	broken.UsageQuantity = nil

	store := &fakeStore{
		listings: map[string]*awss3.Listing{
			"SPACE_ONE/billing/database=MZC/account_id=111111111111/year=2024/month=05": {
				Objects: []awss3.Object{{Key: "may/part-0.parquet", Size: 512}},
			},
		},
		objects: map[string][]byte{
			"may/part-0.parquet": encodeRows(t, []fetch.BillingRow{broken}),
		},
	}

	stream, err := fixedPipeline(store, &fakeCoordinator{}).Stream(context.Background(), identityTask("true"), false)
	if err != nil {
		t.Fatal(err)
	}

	for stream.Next(context.Background()) {
	}
	if perrors.CodeOf(stream.Err()) != perrors.ErrCodeClassification {
		t.Errorf("stream error = %v, want classification failure", stream.Err())
	}
}
