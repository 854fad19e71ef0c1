package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cds-extensions/internal/config"
)

type fakeJobs struct {
	runs, cleanups atomic.Int32
	sawCancel      atomic.Bool
}

func (f *fakeJobs) Run(ctx context.Context) {
	f.runs.Add(1)
	f.sawCancel.Store(ctx.Err() != nil)
}

func (f *fakeJobs) RunBulkCleanup(context.Context) { f.cleanups.Add(1) }

func TestRegisterMetadata(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MetadataCacheConfig
		entries int
	}{
		{"update only", config.MetadataCacheConfig{UpdateSchedule: "@every 2m"}, 1},
		{"immediate cleanup", config.MetadataCacheConfig{UpdateSchedule: "@every 2m", CleanupEnabled: true}, 1},
		{"bulk cleanup", config.MetadataCacheConfig{UpdateSchedule: "*/5 * * * *", CleanupEnabled: true, BulkCleanup: true, BulkCleanupHour: 3}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(context.Background())
			jobs := &fakeJobs{}
			require.NoError(t, s.RegisterMetadata(jobs, tt.cfg))

			entries := s.cron.Entries()
			require.Len(t, entries, tt.entries)
			entries[0].WrappedJob.Run()
			assert.EqualValues(t, 1, jobs.runs.Load())
			if tt.entries == 2 {
				entries[1].WrappedJob.Run()
				assert.EqualValues(t, 1, jobs.cleanups.Load())
			}
		})
	}
}

func TestRegisterMetadata_InvalidSchedule(t *testing.T) {
	s := New(context.Background())
	err := s.RegisterMetadata(&fakeJobs{}, config.MetadataCacheConfig{UpdateSchedule: "every now and then"})
	assert.ErrorContains(t, err, "schedule metadata update")
}

func TestBulkCleanupSpec(t *testing.T) {
	assert.Equal(t, "0 2 * * *", BulkCleanupSpec(2))
}

func TestStopCancelsJobContext(t *testing.T) {
	s := New(context.Background())
	jobs := &fakeJobs{}
	require.NoError(t, s.RegisterMetadata(jobs, config.MetadataCacheConfig{UpdateSchedule: "@every 1h"}))
	s.Start()
	<-s.Stop().Done()

	s.cron.Entries()[0].WrappedJob.Run()
	assert.True(t, jobs.sawCancel.Load())
}
