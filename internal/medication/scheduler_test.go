package medication

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/bus"
	"github.com/aland-omed/ElderGuard/internal/models"
)

type fakeFetcher struct {
	doses []models.MedicationDose
	err   error
	calls int
}

func (f *fakeFetcher) Fetch() ([]models.MedicationDose, error) {
	f.calls++
	return f.doses, f.err
}

func TestCache_RoundTripAndMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medications.json")

	// 缓存不存在：空计划，不算错误
	doses, err := LoadCache(path)
	require.NoError(t, err)
	assert.Empty(t, doses)

	want := []models.MedicationDose{
		{ID: 1, Name: "Aspirin", Dosage: "100mg", ScheduledTime: "08:00", Instructions: "after food"},
		{ID: 2, Name: "Metformin", Dosage: "500mg", ScheduledTime: "20:00"},
	}
	require.NoError(t, SaveCache(path, want))

	got, err := LoadCache(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestScheduler_FetchFailureKeepsLastSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medications.json")
	fetcher := &fakeFetcher{doses: []models.MedicationDose{dose(1, "Aspirin", "08:00")}}
	b := bus.NewBus(bus.DefaultPublishTimeout, zap.NewNop())
	s := NewScheduler(fetcher, path, time.Hour, time.Second, b, zap.NewNop())

	s.fetch()
	next, _, ok := s.Upcoming(testDay)
	require.True(t, ok)
	assert.Equal(t, "Aspirin", next.Name)

	// 之后的拉取失败：沿用上一次的好计划
	fetcher.err = errors.New("platform unreachable")
	fetcher.doses = nil
	s.fetch()

	next, _, ok = s.Upcoming(testDay)
	require.True(t, ok)
	assert.Equal(t, "Aspirin", next.Name)

	// 缓存仍是好计划，重启后可恢复
	cached, err := LoadCache(path)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "Aspirin", cached[0].Name)
}

func TestScheduler_DueAlertPublishedToBus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medications.json")
	fetcher := &fakeFetcher{doses: []models.MedicationDose{dose(1, "Aspirin", "08:00")}}
	b := bus.NewBus(bus.DefaultPublishTimeout, zap.NewNop())
	s := NewScheduler(fetcher, path, time.Hour, time.Second, b, zap.NewNop())

	sub := b.Medication.Subscribe()
	s.fetch()
	s.check(testDay.Add(8*time.Hour + 2*time.Second))

	require.True(t, sub.Fresh())
	alert := b.Medication.Get()
	assert.Equal(t, models.MedicationDue, alert.Stage)
	assert.Equal(t, "Aspirin", alert.Dose.Name)
}
