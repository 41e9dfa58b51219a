package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HerbHall/switchyard/pkg/models"
)

func TestLogger_NotNil(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestClock_Advance(t *testing.T) {
	c := NewClock()
	if !c.Now().Equal(Epoch) {
		t.Fatalf("NewClock() = %v, want %v", c.Now(), Epoch)
	}
	got := c.Advance(5 * time.Minute)
	if want := Epoch.Add(5 * time.Minute); !got.Equal(want) || !c.Now().Equal(want) {
		t.Errorf("Advance = %v, Now = %v, want %v", got, c.Now(), want)
	}
}

func TestClock_Set(t *testing.T) {
	c := NewClock()
	target := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Errorf("Set: got %v, want %v", c.Now(), target)
	}
}

func TestNewDevice_Defaults(t *testing.T) {
	d := NewDevice()
	if d.Name == "" {
		t.Error("expected non-empty Name")
	}
	if !d.Has(models.CapTraffic) {
		t.Error("expected all capabilities by default")
	}
}

func TestNewDevice_Options(t *testing.T) {
	d := NewDevice(WithName("edge"), WithAdapter(models.AdapterREST), WithCapabilities(models.CapHosts))
	if d.Name != "edge" || d.Adapter != models.AdapterREST {
		t.Errorf("got %s/%s, want edge/rest", d.Name, d.Adapter)
	}
	if d.Has(models.CapInterfaces) {
		t.Error("capabilities not replaced")
	}
}

func TestFakeAdapter_RecordsCalls(t *testing.T) {
	f := NewFakeAdapter(models.AdapterCLI, models.SourceSSHCLI)
	ctx := context.Background()

	_ = f.HealthCheck(ctx)
	_ = f.Connect(ctx)
	f.QueueTraffic(&models.TrafficSample{InBytes: 1})
	s, _ := f.QueryTraffic(ctx)
	if s == nil || s.InBytes != 1 {
		t.Errorf("QueryTraffic() = %+v, want queued sample", s)
	}
	s, _ = f.QueryTraffic(ctx)
	if s != nil {
		t.Errorf("QueryTraffic() on empty queue = %+v, want nil", s)
	}

	calls := f.Calls()
	want := []string{OpHealthCheck, OpConnect, OpQueryTraffic, OpQueryTraffic}
	if len(calls) != len(want) {
		t.Fatalf("Calls() = %v, want %v", calls, want)
	}
	if f.Count(OpQueryTraffic) != 2 {
		t.Errorf("Count(query_traffic) = %d, want 2", f.Count(OpQueryTraffic))
	}
}

func TestFakeAdapter_SetError(t *testing.T) {
	f := NewFakeAdapter(models.AdapterCLI, models.SourceSSHCLI)
	boom := errors.New("boom")
	f.SetError(OpConnect, boom)
	if err := f.Connect(context.Background()); err != boom {
		t.Errorf("Connect() = %v, want boom", err)
	}
	f.SetError(OpConnect, nil)
	if err := f.Connect(context.Background()); err != nil {
		t.Errorf("Connect() = %v after clear, want nil", err)
	}
}
