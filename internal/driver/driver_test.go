package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/setupgrid/internal/item"
	"github.com/vk/setupgrid/internal/semver"
	"github.com/vk/setupgrid/internal/sorter"
)

var allSteps = []Step{StepInit, StepInitContent, StepInstall, StepInstallContent, StepSettle, StepSettleContent, StepDone}

func sortedItem(name, version string) *sorter.SortedItem {
	it := &item.Item{FullName: name}
	if version != "" {
		it.Version = semver.MustParseVersion(version)
	}
	return &sorter.SortedItem{Item: it, FullName: name}
}

func containerItem(name, version string) *sorter.SortedItem {
	s := sortedItem(name, version)
	s.Item.Kind = item.KindContainer
	return s
}

// recorder logs every behavior and handler call.
type recorder struct {
	calls []string
}

func (r *recorder) behavior() Behavior {
	return BehaviorFunc(func(_ context.Context, d *Driver, step Step, before bool) error {
		r.calls = append(r.calls, fmt.Sprintf("%s:%s:before=%t", d.FullName(), step, before))
		return nil
	})
}

func (r *recorder) handler(name string) Handler {
	return HandlerFunc(func(_ context.Context, d *Driver, step Step) error {
		r.calls = append(r.calls, fmt.Sprintf("%s:%s:%s", d.FullName(), step, name))
		return nil
	})
}

func TestStepSequence(t *testing.T) {
	s := StepNone
	var got []Step
	for s != StepDone {
		s = s.Next()
		got = append(got, s)
	}
	assert.Equal(t, allSteps, got)
	assert.Equal(t, StepDone, StepDone.Next())
	assert.Equal(t, StepInstallContent, StepInstall.Content())
	assert.True(t, StepSettleContent.IsContent())
	assert.False(t, StepSettle.IsContent())
	assert.Equal(t, "InitContent", StepInitContent.String())
}

func TestParseStep(t *testing.T) {
	for _, s := range allSteps {
		got, err := ParseStep(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := ParseStep(" install_content ")
	require.NoError(t, err)
	assert.Equal(t, StepInstallContent, got)

	_, err = ParseStep("deploy")
	require.Error(t, err)

	set, err := ParseSteps(nil, StepInstall)
	require.NoError(t, err)
	assert.Equal(t, map[Step]bool{StepInstall: true}, set)
	set, err = ParseSteps([]string{"init", "Settle"})
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.True(t, set[StepSettle])
	_, err = ParseSteps([]string{"Done"})
	require.Error(t, err)
}

func TestExecuteRunsBehaviorAroundHandlers(t *testing.T) {
	rec := &recorder{}
	d := New(BuildInfo{Item: sortedItem("A", "1.0")}, rec.behavior())
	require.NoError(t, d.AddHandler(rec.handler("h1")))
	require.NoError(t, d.AddHandler(rec.handler("h2")))

	require.NoError(t, d.Execute(context.Background(), StepInit))
	assert.Equal(t, []string{
		"A:Init:before=true",
		"A:Init:h1",
		"A:Init:h2",
		"A:Init:before=false",
	}, rec.calls)
	assert.Equal(t, StepInit, d.Step())
}

func TestExecuteEnforcesOrder(t *testing.T) {
	d := New(BuildInfo{Item: sortedItem("A", "")}, nil)
	ctx := context.Background()

	err := d.Execute(ctx, StepInstall)
	require.ErrorIs(t, err, ErrStepOrder)
	assert.False(t, d.Failed(), "order errors do not fail the item")

	for _, s := range allSteps {
		require.NoError(t, d.Execute(ctx, s), s.String())
	}
	require.ErrorIs(t, d.Execute(ctx, StepInit), ErrStepOrder)
	require.ErrorIs(t, d.Execute(ctx, StepDone), ErrStepOrder)
}

func TestExecuteVersionSkip(t *testing.T) {
	ctx := context.Background()

	t.Run("equal versions skip install", func(t *testing.T) {
		rec := &recorder{}
		d := New(BuildInfo{Item: sortedItem("A", "1.0"), ExternalVersion: semver.MustParseVersion("1.0.0")}, rec.behavior())
		require.NoError(t, d.AddHandler(rec.handler("h")))
		assert.False(t, d.NeedsInstall())

		for _, s := range allSteps {
			require.NoError(t, d.Execute(ctx, s))
		}
		assert.True(t, d.VersionSkipped())
		for _, c := range rec.calls {
			assert.NotContains(t, c, "Install")
		}
		assert.Contains(t, rec.calls, "A:Init:h")
		assert.Contains(t, rec.calls, "A:Settle:h")
	})

	t.Run("different or missing versions install", func(t *testing.T) {
		cases := []struct{ declared, external string }{
			{"2.0", "1.0"},
			{"1.0", ""},
			{"", ""},
		}
		for _, c := range cases {
			info := BuildInfo{Item: containerItem("A", c.declared)}
			if c.external != "" {
				info.ExternalVersion = semver.MustParseVersion(c.external)
			}
			rec := &recorder{}
			d := New(info, nil)
			require.NoError(t, d.AddHandler(rec.handler("h")))
			for _, s := range allSteps {
				require.NoError(t, d.Execute(ctx, s))
			}
			assert.False(t, d.VersionSkipped(), c)
			assert.Contains(t, rec.calls, "A:Install:h", c)
			assert.Contains(t, rec.calls, "A:InstallContent:h", c)
		}
	})
}

func TestExecuteContentStepsPassThroughForLeaves(t *testing.T) {
	ctx := context.Background()

	rec := &recorder{}
	leaf := New(BuildInfo{Item: sortedItem("Leaf", "1.0")}, rec.behavior())
	require.NoError(t, leaf.AddHandler(rec.handler("h")))
	for _, s := range allSteps {
		require.NoError(t, leaf.Execute(ctx, s), s.String())
		assert.Equal(t, s, leaf.Step())
	}
	for _, c := range rec.calls {
		assert.NotContains(t, c, "Content")
	}
	assert.Len(t, rec.calls, 9, "three main steps, each with behavior before, handler, behavior after")

	rec = &recorder{}
	box := New(BuildInfo{Item: containerItem("Box", "1.0")}, nil)
	require.NoError(t, box.AddHandler(rec.handler("h")))
	for _, s := range allSteps {
		require.NoError(t, box.Execute(ctx, s), s.String())
	}
	assert.Equal(t, []string{
		"Box:Init:h", "Box:InitContent:h",
		"Box:Install:h", "Box:InstallContent:h",
		"Box:Settle:h", "Box:SettleContent:h",
	}, rec.calls)
}

func TestExecuteHandlerFailure(t *testing.T) {
	rec := &recorder{}
	d := New(BuildInfo{Item: sortedItem("A", "")}, rec.behavior())
	boom := errors.New("boom")
	require.NoError(t, d.AddHandler(&StepHandlers{
		Name: "failing",
		Install: func(context.Context, *Driver) error {
			return boom
		},
	}))
	require.NoError(t, d.AddHandler(rec.handler("after")))
	ctx := context.Background()

	require.NoError(t, d.Execute(ctx, StepInit))
	require.NoError(t, d.Execute(ctx, StepInitContent))
	err := d.Execute(ctx, StepInstall)
	require.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "A", stepErr.Item)
	assert.Equal(t, StepInstall, stepErr.Step)
	assert.Equal(t, "failing", stepErr.Handler)
	assert.True(t, d.Failed())
	assert.Same(t, stepErr, d.Err())

	assert.NotContains(t, rec.calls, "A:Install:after")
	assert.NotContains(t, rec.calls, "A:Install:before=false")

	require.ErrorIs(t, d.Execute(ctx, StepInstallContent), ErrDriverFailed)
}

func TestExecuteBehaviorFailureBeforeHandlers(t *testing.T) {
	rec := &recorder{}
	d := New(BuildInfo{Item: sortedItem("A", "")}, BehaviorFunc(func(_ context.Context, _ *Driver, step Step, before bool) error {
		if step == StepInit && before {
			return errors.New("cannot load scripts")
		}
		return nil
	}))
	require.NoError(t, d.AddHandler(rec.handler("h")))

	err := d.Execute(context.Background(), StepInit)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.True(t, stepErr.Before)
	assert.Empty(t, rec.calls)
	assert.Contains(t, err.Error(), "before handlers")
}

func TestExecuteRecoversPanics(t *testing.T) {
	d := New(BuildInfo{Item: sortedItem("A", "")}, nil)
	require.NoError(t, d.AddHandler(HandlerFunc(func(context.Context, *Driver, Step) error {
		panic("unexpected")
	})))

	var err error
	require.NotPanics(t, func() {
		err = d.Execute(context.Background(), StepInit)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: unexpected")
	assert.Contains(t, err.Error(), "handler#0")
	assert.True(t, d.Failed())
}

func TestAddHandlerDuringRun(t *testing.T) {
	rec := &recorder{}
	d := New(BuildInfo{Item: containerItem("A", "")}, nil)
	ctx := context.Background()

	require.NoError(t, d.Execute(ctx, StepInit))
	require.NoError(t, d.AddHandler(rec.handler("late")))
	require.NoError(t, d.Execute(ctx, StepInitContent))
	assert.Equal(t, []string{"A:InitContent:late"}, rec.calls)

	for _, s := range allSteps[2:] {
		require.NoError(t, d.Execute(ctx, s))
	}
	require.ErrorIs(t, d.AddHandler(rec.handler("too-late")), ErrDriverDone)
	assert.Equal(t, 1, d.HandlerCount())
}

func TestFail(t *testing.T) {
	d := New(BuildInfo{Item: sortedItem("A", "")}, nil)
	d.Fail(ErrBlocked)
	d.Fail(errors.New("ignored"))
	assert.ErrorIs(t, d.Err(), ErrBlocked)
	require.ErrorIs(t, d.Execute(context.Background(), StepInit), ErrDriverFailed)
}

func TestMux(t *testing.T) {
	var used []string
	factory := func(name string) Factory {
		return FactoryFunc(func(kind item.Kind, info BuildInfo) (*Driver, error) {
			used = append(used, name)
			return New(info, nil), nil
		})
	}
	m := NewMux(factory("default"))
	m.Handle("table", factory("table"))
	m.Handle("container", factory("container"))

	table := sortedItem("T", "")
	table.Item.Type = "table"
	_, err := m.CreateDriver(item.KindItem, BuildInfo{Item: table})
	require.NoError(t, err)

	db := sortedItem("DB", "")
	db.Item.Kind = item.KindContainer
	_, err = m.CreateDriver(item.KindContainer, BuildInfo{Item: db})
	require.NoError(t, err)

	_, err = m.CreateDriver(item.KindItem, BuildInfo{Item: sortedItem("X", "")})
	require.NoError(t, err)

	assert.Equal(t, []string{"table", "container", "default"}, used)
	assert.Panics(t, func() { m.Handle("table", factory("again")) })

	_, err = DefaultFactory{}.CreateDriver(item.KindItem, BuildInfo{})
	require.Error(t, err)
}
