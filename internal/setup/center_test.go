package setup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/item"
	"github.com/vk/setupgrid/internal/semver"
	"github.com/vk/setupgrid/internal/versionstore"
)

func newItem(name, version string, k item.Kind, requires ...string) *item.Item {
	it := &item.Item{FullName: name, Kind: k}
	if version != "" {
		it.Version = semver.MustParseVersion(version)
	}
	for _, r := range requires {
		it.Requires = append(it.Requires, item.MustParseRef(r))
	}
	return it
}

func child(name, version, container string) *item.Item {
	it := newItem(name, version, item.KindItem)
	r := item.MustParseRef(container)
	it.Container = &r
	return it
}

// callLog attaches a recording handler to every driver when it is created.
type callLog struct {
	calls []string
	// fail maps an item to the step at which its handler fails.
	fail map[string]driver.Step
	// onCall runs inside the handler.
	onCall func(name string, step driver.Step)
}

func (l *callLog) attach(c *Center) {
	c.OnDriverEvent(func(_ context.Context, ev DriverEvent) {
		if ev.Step != driver.StepNone {
			return
		}
		name := ev.Driver.FullName()
		_ = ev.Driver.AddHandler(driver.HandlerFunc(func(_ context.Context, _ *driver.Driver, step driver.Step) error {
			l.calls = append(l.calls, name+":"+step.String())
			if l.onCall != nil {
				l.onCall(name, step)
			}
			if s, ok := l.fail[name]; ok && s == step {
				return errors.New("forced failure")
			}
			return nil
		}))
	})
}

func (l *callLog) matching(substr string) []string {
	var out []string
	for _, c := range l.calls {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

func newCenter(t *testing.T, repo versionstore.Repository, log *callLog) *Center {
	t.Helper()
	c, err := New(Config{Versions: repo})
	require.NoError(t, err)
	if log != nil {
		log.attach(c)
	}
	return c
}

func endToEndItems() []*item.Item {
	return []*item.Item{
		newItem("Proc1", "1.0", item.KindItem, "Table1"),
		newItem("Table1", "1.0", item.KindItem, "DB"),
		newItem("DB", "1.0", item.KindContainer),
	}
}

func TestEndToEndFirstAndSecondRun(t *testing.T) {
	ctx := context.Background()
	repo := versionstore.NewMemory()

	first := &callLog{}
	c := newCenter(t, repo, first)
	report, err := c.Run(ctx, endToEndItems())
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Equal(t, StateSettled, report.State)
	assert.Equal(t, []string{"DB.Head", "DB", "Table1", "Proc1"}, report.Order)
	assert.Equal(t, []string{"DB", "Table1", "Proc1"}, report.Committed)
	assert.Equal(t, []string{
		"DB:Init", "DB:InitContent",
		"Table1:Init",
		"Proc1:Init",
	}, first.matching(":Init"))

	for _, key := range [][2]string{{"container", "DB"}, {"item", "Table1"}, {"item", "Proc1"}} {
		v, err := repo.GetVersion(ctx, key[0], key[1])
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", v.String(), key[1])
	}
	for _, d := range c.Drivers() {
		assert.Equal(t, driver.StepDone, d.Step())
	}

	second := &callLog{}
	c2 := newCenter(t, repo, second)
	report, err = c2.Run(ctx, endToEndItems())
	require.NoError(t, err)
	assert.Empty(t, second.matching(":Install"), "unchanged model installs nothing")
	assert.NotEmpty(t, second.matching(":Init"))
	assert.NotEmpty(t, second.matching(":Settle"))
	assert.Empty(t, report.Committed)
	assert.Equal(t, []string{"DB", "Table1", "Proc1"}, report.Skipped)
	assert.Equal(t, StateSettled, report.State)
}

func TestVersionBumpReinstallsOnlyChangedItem(t *testing.T) {
	ctx := context.Background()
	repo := versionstore.NewMemory()
	_, err := newCenter(t, repo, nil).Run(ctx, endToEndItems())
	require.NoError(t, err)

	items := endToEndItems()
	items[1].Version = semver.MustParseVersion("1.1")

	log := &callLog{}
	report, err := newCenter(t, repo, log).Run(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, []string{"Table1:Install"}, log.matching(":Install"))
	assert.Equal(t, []string{"Table1"}, report.Committed)
}

func TestContainerBracketsChildrenInEveryPhase(t *testing.T) {
	log := &callLog{}
	c := newCenter(t, versionstore.NewMemory(), log)
	_, err := c.Run(context.Background(), []*item.Item{
		newItem("DB", "1.0", item.KindContainer),
		child("T2", "1.0", "DB"),
		child("T1", "1.0", "DB"),
	})
	require.NoError(t, err)

	for _, phase := range []string{"Init", "Install", "Settle"} {
		var got []string
		for _, call := range log.calls {
			step := call[strings.Index(call, ":")+1:]
			if step == phase || step == phase+"Content" {
				got = append(got, call)
			}
		}
		assert.Equal(t, []string{
			"DB:" + phase,
			"T1:" + phase,
			"T2:" + phase,
			"DB:" + phase + "Content",
		}, got, phase)
	}
}

func TestLeafContentStepsPassThrough(t *testing.T) {
	log := &callLog{}
	c := newCenter(t, versionstore.NewMemory(), log)
	report, err := c.Run(context.Background(), []*item.Item{newItem("Leaf", "1.0", item.KindItem)})
	require.NoError(t, err)

	assert.Equal(t, []string{"Leaf:Init", "Leaf:Install", "Leaf:Settle"}, log.calls)
	assert.Empty(t, log.matching("Content"))
	assert.Equal(t, []string{"Leaf"}, report.Committed, "a passed-through InstallContent still commits")
	assert.Equal(t, driver.StepDone, c.Driver("Leaf").Step())
}

func TestPartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	repo := versionstore.NewMemory()
	require.NoError(t, repo.SetVersion(ctx, "item", "B", semver.MustParseVersion("0.9")))

	log := &callLog{fail: map[string]driver.Step{"B": driver.StepInstall}}
	c := newCenter(t, repo, log)
	report, err := c.Run(ctx, []*item.Item{
		newItem("A", "1.0", item.KindItem),
		newItem("B", "1.0", item.KindItem),
		newItem("C", "1.0", item.KindItem),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forced failure")

	assert.Equal(t, []string{"A", "C"}, report.Committed)
	assert.Equal(t, []string{"B"}, report.FailedItems())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, driver.StepInstall, report.Failures[0].Step)
	assert.Equal(t, StateSettlementError, report.State)

	v, err := repo.GetVersion(ctx, "item", "B")
	require.NoError(t, err)
	assert.Equal(t, "0.9.0", v.String(), "failed item keeps its old version")
	for _, name := range []string{"A", "C"} {
		v, err := repo.GetVersion(ctx, "item", name)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", v.String())
	}

	assert.Contains(t, log.calls, "C:Settle")
	assert.NotContains(t, log.calls, "B:InstallContent")
	assert.NotContains(t, log.calls, "B:Settle")
}

func TestFailedPredecessorBlocksDependents(t *testing.T) {
	log := &callLog{fail: map[string]driver.Step{"A": driver.StepInit}}
	c := newCenter(t, versionstore.NewMemory(), log)
	report, err := c.Run(context.Background(), []*item.Item{
		newItem("A", "1.0", item.KindItem),
		newItem("B", "1.0", item.KindItem, "A"),
		newItem("C", "1.0", item.KindItem),
	})
	require.Error(t, err)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "A", report.Failures[0].Item)
	assert.False(t, report.Failures[0].Blocked())
	assert.Equal(t, "B", report.Failures[1].Item)
	assert.True(t, report.Failures[1].Blocked())
	assert.ErrorIs(t, report.Failures[1].Err, driver.ErrBlocked)

	assert.Equal(t, []string{"C"}, report.Committed)
	assert.Empty(t, log.matching("B:"), "blocked items never run")
	assert.Equal(t, StateSettlementError, c.State())
}

func TestRegistrationFailsOnCycle(t *testing.T) {
	c := newCenter(t, versionstore.NewMemory(), nil)
	created := 0
	c.OnDriverEvent(func(context.Context, DriverEvent) { created++ })

	err := c.Register(context.Background(), []*item.Item{
		newItem("A", "", item.KindItem, "B"),
		newItem("B", "", item.KindItem, "A"),
	})
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, []string{"A", "B", "A"}, regErr.Diagnostics.Cycle)
	assert.Equal(t, StateRegistrationError, c.State())
	assert.Empty(t, c.Drivers())
	assert.Zero(t, created)

	require.ErrorIs(t, c.RunInit(context.Background()), ErrInvalidState)
	report := c.Report()
	assert.False(t, report.OK())
	assert.Contains(t, report.Err().Error(), "dependency cycle")
}

func TestRegistrationFailsOnRepositoryError(t *testing.T) {
	c, err := New(Config{Versions: failingRepo{getErr: errors.New("db down")}})
	require.NoError(t, err)
	err = c.Register(context.Background(), []*item.Item{newItem("A", "1.0", item.KindItem)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, StateRegistrationError, c.State())
}

func TestCommitErrorFailsOnlyThatItem(t *testing.T) {
	repo := failingRepo{Memory: versionstore.NewMemory(), setFail: "B"}
	c, err := New(Config{Versions: repo})
	require.NoError(t, err)
	report, err := c.Run(context.Background(), []*item.Item{
		newItem("A", "1.0", item.KindItem),
		newItem("B", "1.0", item.KindItem),
	})
	require.Error(t, err)
	assert.Equal(t, []string{"A"}, report.Committed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "B", report.Failures[0].Item)
	assert.Contains(t, report.Failures[0].Err.Error(), "commit version 1.0.0")
}

func TestCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := versionstore.NewMemory()

	log := &callLog{onCall: func(name string, step driver.Step) {
		if name == "A" && step == driver.StepInstall {
			cancel()
		}
	}}
	c := newCenter(t, repo, log)
	report, err := c.Run(ctx, []*item.Item{
		newItem("A", "1.0", item.KindItem),
		newItem("B", "1.0", item.KindItem),
		newItem("C", "1.0", item.KindItem),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, report.Cancelled, context.Canceled)
	assert.Equal(t, StateSettlementError, report.State)
	assert.Empty(t, report.Committed)

	assert.Contains(t, log.calls, "A:Install")
	assert.NotContains(t, log.calls, "A:InstallContent")
	assert.Empty(t, log.matching("B:Install"))
	assert.Empty(t, log.matching(":Settle"))

	records, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	c := newCenter(t, versionstore.NewMemory(), nil)
	c.OnDriverEvent(func(_ context.Context, ev DriverEvent) {
		if ev.Step == driver.StepNone && ev.Driver.FullName() == "A" {
			_ = ev.Driver.AddHandler(&driver.StepHandlers{Settle: func(context.Context, *driver.Driver) error {
				panic("settle exploded")
			}})
		}
	})

	var report *Report
	require.NotPanics(t, func() {
		report, _ = c.Run(context.Background(), []*item.Item{
			newItem("A", "1.0", item.KindItem),
			newItem("B", "1.0", item.KindItem),
		})
	})
	require.Len(t, report.Failures, 1)
	assert.Equal(t, driver.StepSettle, report.Failures[0].Step)
	assert.Contains(t, report.Failures[0].Err.Error(), "settle exploded")
	assert.Equal(t, []string{"A", "B"}, report.Committed, "install succeeded before the panic")
	assert.Equal(t, driver.StepDone, c.Driver("B").Step())
}

func TestObserverPanicFailsDriver(t *testing.T) {
	c := newCenter(t, versionstore.NewMemory(), nil)
	c.OnDriverEvent(func(_ context.Context, ev DriverEvent) {
		if ev.Step == driver.StepInstall && ev.Driver.FullName() == "A" {
			panic("observer bug")
		}
	})
	report, err := c.Run(context.Background(), []*item.Item{newItem("A", "1.0", item.KindItem)})
	require.Error(t, err)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Err.Error(), "observer bug")
	assert.Empty(t, report.Committed)
}

func TestDriverEvents(t *testing.T) {
	c := newCenter(t, versionstore.NewMemory(), nil)
	var events []string
	c.OnDriverEvent(func(_ context.Context, ev DriverEvent) {
		events = append(events, ev.Driver.FullName()+":"+ev.Step.String())
	})
	_, err := c.Run(context.Background(), []*item.Item{
		newItem("B", "", item.KindItem, "A"),
		newItem("A", "", item.KindItem),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"A:None", "B:None",
		"A:Init", "A:InitContent", "B:Init", "B:InitContent",
		"A:Install", "A:InstallContent", "B:Install", "B:InstallContent",
		"A:Settle", "A:SettleContent", "B:Settle", "B:SettleContent",
		"A:Done", "B:Done",
	}, events)
}

func TestPhaseOrderIsEnforced(t *testing.T) {
	ctx := context.Background()
	c := newCenter(t, versionstore.NewMemory(), nil)
	require.ErrorIs(t, c.RunInit(ctx), ErrInvalidState)

	require.NoError(t, c.Register(ctx, []*item.Item{newItem("A", "1.0", item.KindItem)}))
	require.ErrorIs(t, c.Register(ctx, nil), ErrInvalidState)
	require.ErrorIs(t, c.RunInstall(ctx), ErrInvalidState)
	require.ErrorIs(t, c.RunSettle(ctx), ErrInvalidState)

	require.NoError(t, c.RunInit(ctx))
	assert.Equal(t, StateInitialized, c.State())
	require.NoError(t, c.RunInstall(ctx))
	assert.Equal(t, StateInstalled, c.State())
	require.NoError(t, c.RunSettle(ctx))
	assert.Equal(t, StateSettled, c.State())

	_, err := New(Config{})
	require.Error(t, err)
}

func TestRevertOrderingNames(t *testing.T) {
	c, err := New(Config{Versions: versionstore.NewMemory(), RevertOrderingNames: true})
	require.NoError(t, err)
	report, err := c.Run(context.Background(), []*item.Item{
		newItem("A", "", item.KindItem),
		newItem("B", "", item.KindItem),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, report.Order)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c, err := New(Config{Versions: versionstore.NewMemory(), Metrics: m})
	require.NoError(t, err)

	_, err = c.Run(context.Background(), endToEndItems())
	require.NoError(t, err)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.versionsCommitted))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.steps.WithLabelValues("Install", resultOK)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.sortFatal))
	assert.Equal(t, 3, testutil.CollectAndCount(m.phaseDuration))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.committed() })
}

// failingRepo wraps Memory with injected failures.
type failingRepo struct {
	*versionstore.Memory
	getErr  error
	setFail string
}

func (r failingRepo) GetVersion(ctx context.Context, itemType, fullName string) (semver.Version, error) {
	if r.getErr != nil {
		return semver.Version{}, r.getErr
	}
	return r.Memory.GetVersion(ctx, itemType, fullName)
}

func (r failingRepo) SetVersion(ctx context.Context, itemType, fullName string, v semver.Version) error {
	if fullName == r.setFail {
		return errors.New("write rejected")
	}
	return r.Memory.SetVersion(ctx, itemType, fullName, v)
}
