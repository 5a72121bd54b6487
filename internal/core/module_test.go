package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// fakeModule implements the full lifecycle and records each call.
type fakeModule struct {
	id         ModuleID
	calls      *[]string
	failAt     string
	configured *yaml.Node
}

func (f *fakeModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID:  f.id,
		New: func() Module { return &fakeModule{id: f.id, calls: f.calls, failAt: f.failAt} },
	}
}

func (f *fakeModule) record(step string) error {
	if f.calls != nil {
		*f.calls = append(*f.calls, string(f.id)+":"+step)
	}
	if f.failAt == step {
		return errors.New(step + " failed")
	}
	return nil
}

func (f *fakeModule) Configure(node *yaml.Node) error {
	f.configured = node
	return f.record("configure")
}

func (f *fakeModule) Provision(*AppContext) error { return f.record("provision") }
func (f *fakeModule) Validate() error             { return f.record("validate") }
func (f *fakeModule) Start() error                { return f.record("start") }
func (f *fakeModule) Stop(context.Context) error  { return f.record("stop") }

func testAppContext() *AppContext {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAppContext(logger, "", "")
}

func TestRegisterModule_DuplicatePanics(t *testing.T) {
	resetModules()
	defer resetModules()

	RegisterModule(&fakeModule{id: "test.dup"})

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	RegisterModule(&fakeModule{id: "test.dup"})
}

func TestRegisterModule_EmptyIDPanics(t *testing.T) {
	resetModules()
	defer resetModules()

	defer func() {
		if recover() == nil {
			t.Error("empty module ID should panic")
		}
	}()
	RegisterModule(&fakeModule{id: ""})
}

func TestGetModules_SortedByID(t *testing.T) {
	resetModules()
	defer resetModules()

	RegisterModule(&fakeModule{id: "gateway.http"})
	RegisterModule(&fakeModule{id: "approval.broker"})
	RegisterModule(&fakeModule{id: "channel.telegram"})

	infos := GetModules()
	want := []ModuleID{"approval.broker", "channel.telegram", "gateway.http"}
	if len(infos) != len(want) {
		t.Fatalf("GetModules length = %d, want %d", len(infos), len(want))
	}
	for i, id := range want {
		if infos[i].ID != id {
			t.Errorf("infos[%d].ID = %s, want %s", i, infos[i].ID, id)
		}
	}
}

func TestLoadModule_LifecycleOrder(t *testing.T) {
	resetModules()
	defer resetModules()

	var calls []string
	RegisterModule(&fakeModule{id: "test.mod", calls: &calls})

	ctx := testAppContext().WithModuleConfigs(map[string]yaml.Node{
		"test.mod": {Kind: yaml.MappingNode},
	})

	if _, err := ctx.LoadModule("test.mod"); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}

	want := []string{"test.mod:configure", "test.mod:provision", "test.mod:validate"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestLoadModule_SkipsConfigureWithoutConfig(t *testing.T) {
	resetModules()
	defer resetModules()

	var calls []string
	RegisterModule(&fakeModule{id: "test.mod", calls: &calls})

	if _, err := testAppContext().LoadModule("test.mod"); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	for _, c := range calls {
		if c == "test.mod:configure" {
			t.Error("Configure should not run when no config section exists")
		}
	}
}

func TestLoadModule_Unknown(t *testing.T) {
	resetModules()
	defer resetModules()

	_, err := testAppContext().LoadModule("no.such.module")
	if err == nil {
		t.Error("loading an unregistered module should fail")
	}
}

func TestLoadModule_ProvisionFailure(t *testing.T) {
	resetModules()
	defer resetModules()

	RegisterModule(&fakeModule{id: "test.bad", failAt: "provision"})

	_, err := testAppContext().LoadModule("test.bad")
	if err == nil || !strings.Contains(err.Error(), "provisioning module test.bad") {
		t.Fatalf("LoadModule = %v, want provisioning error", err)
	}
}
