package main

import (
	"context"
	"fmt"
	"time"

	"callaudit/internal/api"
	"callaudit/internal/config"
	"callaudit/internal/daemonctl"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/notifications"
	"callaudit/internal/reaper"
)

// callAPI abstracts over daemon-backed and direct-store access so commands
// behave the same whether or not the daemon is running.
type callAPI interface {
	Stats(ctx context.Context) (map[string]int, error)
	Health(ctx context.Context) (*api.HealthReport, error)
	List(ctx context.Context, statuses []string) ([]api.CallView, error)
	Describe(ctx context.Context, id int64) (*api.CallDetail, error)
	Retry(ctx context.Context, ids []int64) (api.RetryCallsResult, error)
	Cancel(ctx context.Context, ids []int64) (api.CancelCallsResult, error)
	ClearFinished(ctx context.Context, statuses []string) (int64, error)
	ListBatches(ctx context.Context) ([]api.BatchView, error)
	DescribeBatch(ctx context.Context, id string) (*api.BatchDetail, error)
	Reap(ctx context.Context, age time.Duration) (int, error)
}

// --- daemon API adapter ---

type clientFacade struct {
	client *daemonctl.Client
}

func (f *clientFacade) Stats(ctx context.Context) (map[string]int, error) {
	status, err := f.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Pipeline.CallStats, nil
}

func (f *clientFacade) Health(ctx context.Context) (*api.HealthReport, error) {
	return f.client.Health(ctx)
}

func (f *clientFacade) List(ctx context.Context, statuses []string) ([]api.CallView, error) {
	return f.client.ListCalls(ctx, statuses...)
}

func (f *clientFacade) Describe(ctx context.Context, id int64) (*api.CallDetail, error) {
	return f.client.DescribeCall(ctx, id)
}

func (f *clientFacade) Retry(ctx context.Context, ids []int64) (api.RetryCallsResult, error) {
	merged := api.RetryCallsResult{}
	for _, id := range ids {
		result, err := f.client.RetryCall(ctx, id)
		if err != nil {
			return merged, err
		}
		merged.UpdatedCount += result.UpdatedCount
		merged.Calls = append(merged.Calls, result.Calls...)
	}
	return merged, nil
}

func (f *clientFacade) Cancel(ctx context.Context, ids []int64) (api.CancelCallsResult, error) {
	merged := api.CancelCallsResult{}
	for _, id := range ids {
		result, err := f.client.CancelCall(ctx, id)
		if err != nil {
			return merged, err
		}
		merged.UpdatedCount += result.UpdatedCount
		merged.Calls = append(merged.Calls, result.Calls...)
	}
	return merged, nil
}

func (f *clientFacade) ClearFinished(ctx context.Context, statuses []string) (int64, error) {
	return f.client.ClearFinished(ctx, statuses...)
}

func (f *clientFacade) ListBatches(ctx context.Context) ([]api.BatchView, error) {
	return f.client.ListBatches(ctx)
}

func (f *clientFacade) DescribeBatch(ctx context.Context, id string) (*api.BatchDetail, error) {
	return f.client.DescribeBatch(ctx, id)
}

func (f *clientFacade) Reap(ctx context.Context, age time.Duration) (int, error) {
	return f.client.Reap(ctx, age)
}

// --- direct store adapter ---

type storeFacade struct {
	cfg     *config.Config
	store   *ledger.Store
	service *api.CallService
}

func newStoreFacade(cfg *config.Config, store *ledger.Store) *storeFacade {
	return &storeFacade{
		cfg:     cfg,
		store:   store,
		service: api.NewCallService(store),
	}
}

func (f *storeFacade) Stats(ctx context.Context) (map[string]int, error) {
	return f.service.Stats(ctx)
}

func (f *storeFacade) Health(ctx context.Context) (*api.HealthReport, error) {
	summary, err := f.store.Health(ctx)
	if err != nil {
		return nil, err
	}
	report := api.FromHealth(summary, f.store.CheckDatabase(ctx))
	return &report, nil
}

func (f *storeFacade) List(ctx context.Context, statuses []string) ([]api.CallView, error) {
	filters, err := parseStatusFilters(statuses)
	if err != nil {
		return nil, err
	}
	return f.service.List(ctx, filters...)
}

func (f *storeFacade) Describe(ctx context.Context, id int64) (*api.CallDetail, error) {
	return f.service.Describe(ctx, id)
}

func (f *storeFacade) Retry(ctx context.Context, ids []int64) (api.RetryCallsResult, error) {
	return api.RetryFailedCallsByID(ctx, f.store, ids)
}

func (f *storeFacade) Cancel(ctx context.Context, ids []int64) (api.CancelCallsResult, error) {
	return api.CancelCallsByID(ctx, f.store, ids)
}

func (f *storeFacade) ClearFinished(ctx context.Context, statuses []string) (int64, error) {
	filters, err := parseStatusFilters(statuses)
	if err != nil {
		return 0, err
	}
	return f.store.ClearFinished(ctx, filters...)
}

func (f *storeFacade) ListBatches(ctx context.Context) ([]api.BatchView, error) {
	return f.service.ListBatches(ctx)
}

func (f *storeFacade) DescribeBatch(ctx context.Context, id string) (*api.BatchDetail, error) {
	return f.service.DescribeBatch(ctx, id)
}

func (f *storeFacade) Reap(ctx context.Context, age time.Duration) (int, error) {
	notifier := notifications.NewService(f.cfg)
	defer notifier.Close()
	r := reaper.New(f.cfg, f.store, nil, notifier, logging.NewNop())
	return r.FailStuckCalls(ctx, age)
}

func parseStatusFilters(statuses []string) ([]ledger.Status, error) {
	var filters []ledger.Status
	for _, value := range statuses {
		status, ok := ledger.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		filters = append(filters, status)
	}
	return filters, nil
}
