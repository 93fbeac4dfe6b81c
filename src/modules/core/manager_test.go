package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeModule struct {
	name string
	fail bool
	log  *[]string
}

func (f *fakeModule) Name() string { return f.name }

func (f *fakeModule) Start(context.Context) error {
	if f.fail {
		return errors.New("boom")
	}
	*f.log = append(*f.log, "start "+f.name)
	return nil
}

func (f *fakeModule) Stop(context.Context) { *f.log = append(*f.log, "stop "+f.name) }

func TestManagerStopsInReverse(t *testing.T) {
	var log []string
	m := NewManager(&fakeModule{name: "a", log: &log}, nil, &fakeModule{name: "b", log: &log})
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(&fakeModule{name: "late", log: &log}); err == nil {
		t.Fatal("Add after Start succeeded")
	}
	m.Stop(ctx)
	m.Stop(ctx)
	if got := strings.Join(log, ","); got != "start a,start b,stop b,stop a" {
		t.Fatalf("log = %s", got)
	}
}

func TestManagerRollsBackOnFailure(t *testing.T) {
	var log []string
	m := NewManager(&fakeModule{name: "a", log: &log}, &fakeModule{name: "b", fail: true, log: &log}, &fakeModule{name: "c", log: &log})
	err := m.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "module b failed") {
		t.Fatalf("Start = %v", err)
	}
	if got := strings.Join(log, ","); got != "start a,stop a" {
		t.Fatalf("log = %s", got)
	}
	if names := strings.Join(m.Names(), ","); names != "a,b,c" {
		t.Fatalf("names = %s", names)
	}
}
