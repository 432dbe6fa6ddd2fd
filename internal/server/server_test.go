package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/awss3"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/pipeline"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
)

func testRouter() http.Handler {
	return New(zerolog.Nop()).Router()
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDispatchTableCoversEveryOperation(t *testing.T) {
	operations := []Operation{OpDataSourceInit, OpDataSourceVerify, OpJobGetTasks, OpCostGetData}
	if len(routes) != len(operations) {
		t.Fatalf("routes has %d entries, want %d", len(routes), len(operations))
	}
	for _, op := range operations {
		if routes[op] == "" {
			t.Errorf("operation %q has no route", op)
		}
	}
}

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestInitReturnsMetadata(t *testing.T) {
	rec := postJSON(t, testRouter(), routes[OpDataSourceInit], api.InitRequest{
		Options:  &api.Options{},
		DomainID: "domain-1",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp api.InitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Metadata == nil {
		t.Fatal("expected metadata")
	}
	if resp.Metadata.Currency != "USD" {
		t.Errorf("currency = %q, want USD", resp.Metadata.Currency)
	}
}

func TestInitRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, routes[OpDataSourceInit], bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != perrors.ErrCodeInvalidParameter {
		t.Errorf("error code = %q, want %q", resp.Error, perrors.ErrCodeInvalidParameter)
	}
}

func TestGetTasksPlansFromCoordinator(t *testing.T) {
	coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/list":
			json.NewEncoder(w).Encode(api.ProjectList{
				Results: []*api.Project{
					{ProjectID: "project-1", Tags: map[string]string{"database": "PAYER"}},
				},
				TotalCount: 1,
			})
		case "/service-account/list":
			json.NewEncoder(w).Encode(api.ServiceAccountList{
				Results: []*api.ServiceAccount{
					{
						ServiceAccountID: "sa-1",
						Name:             "prod",
						Data:             api.ServiceAccountData{AccountID: "111122223333"},
						Tags:             map[string]string{"is_sync": "true"},
					},
				},
				TotalCount: 1,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer coordinator.Close()

	rec := postJSON(t, testRouter(), routes[OpJobGetTasks], api.GetTasksRequest{
		Options: &api.Options{},
		SecretData: &api.SecretData{
			SpaceONEEndpoint:     coordinator.URL,
			SpaceONEClientSecret: "token",
		},
		LastSynchronizedAt: "2024-06-15T00:00:00Z",
		DomainID:           "domain-1",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp api.TasksResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(resp.Tasks))
	}
	task := resp.Tasks[0].TaskOptions
	if task.AccountID != "111122223333" {
		t.Errorf("account_id = %q", task.AccountID)
	}
	if task.Database != "PAYER" {
		t.Errorf("database = %q, want PAYER", task.Database)
	}
	if task.Start != "2024-06" {
		t.Errorf("start = %q, want 2024-06", task.Start)
	}
}

func TestGetTasksWithoutCoordinatorSecret(t *testing.T) {
	rec := postJSON(t, testRouter(), routes[OpJobGetTasks], api.GetTasksRequest{
		Options:  &api.Options{},
		DomainID: "domain-1",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != perrors.ErrCodeRequiredParameter {
		t.Errorf("error code = %q, want %q", resp.Error, perrors.ErrCodeRequiredParameter)
	}
}

func TestGetTasksFailingCoordinatorMapsToBadGateway(t *testing.T) {
	coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer coordinator.Close()

	rec := postJSON(t, testRouter(), routes[OpJobGetTasks], api.GetTasksRequest{
		Options: &api.Options{},
		SecretData: &api.SecretData{
			SpaceONEEndpoint:     coordinator.URL,
			SpaceONEClientSecret: "token",
		},
		DomainID: "domain-1",
	})

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestGetTasksRejectsInvalidResyncDays(t *testing.T) {
	rec := postJSON(t, testRouter(), routes[OpJobGetTasks], api.GetTasksRequest{
		Options: &api.Options{ResyncDays: 40},
		SecretData: &api.SecretData{
			SpaceONEEndpoint:     "http://coordinator.invalid",
			SpaceONEClientSecret: "token",
		},
		DomainID: "domain-1",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

type fakeBillingStore struct {
	listErr error
}

func (f *fakeBillingStore) ListObjects(_ context.Context, _, _ string) (*awss3.Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &awss3.Listing{}, nil
}

func (f *fakeBillingStore) ReadObject(_ context.Context, _ string) ([]byte, error) {
	return nil, nil
}

func billingTask() *api.TaskOptions {
	return &api.TaskOptions{
		Start:            "2024-05",
		Database:         "MZC",
		AccountID:        "111122223333",
		ServiceAccountID: "sa-1",
		IsSync:           "true",
		TaskType:         api.TaskTypeIdentity,
	}
}

func TestStreamBatchesFailureBeforeFirstBatch(t *testing.T) {
	store := &fakeBillingStore{listErr: perrors.NewRemoteCall("S3.ListObjectsV2", 503, "slow down")}
	stream, err := pipeline.New(store, nil, zerolog.Nop()).Stream(context.Background(), billingTask(), false)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	New(zerolog.Nop()).streamBatches(context.Background(), rec, stream)

	// Nothing was written yet, so the failure owns the whole response.
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != perrors.ErrCodeRemoteCall {
		t.Errorf("error code = %q, want %q", resp.Error, perrors.ErrCodeRemoteCall)
	}
}

func TestStreamBatchesEmptyWindowYieldsSentinel(t *testing.T) {
	stream, err := pipeline.New(&fakeBillingStore{}, nil, zerolog.Nop()).Stream(context.Background(), billingTask(), false)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	New(zerolog.Nop()).streamBatches(context.Background(), rec, stream)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var batch api.CostBatch
	if err := json.NewDecoder(rec.Body).Decode(&batch); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(batch.Results) != 0 {
		t.Errorf("empty window yielded %d records, want the bare sentinel", len(batch.Results))
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"required parameter", perrors.NewMissingParameter("secret_data"), http.StatusBadRequest},
		{"invalid parameter", perrors.NewInvalidParameter("start", "bad"), http.StatusBadRequest},
		{"remote call", perrors.NewRemoteCall("Project.list", 503, "down"), http.StatusBadGateway},
		{"classification", perrors.NewClassification("usage_type"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Errorf("statusFor() = %d, want %d", got, tc.want)
			}
		})
	}
}
