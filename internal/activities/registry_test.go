package activities

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryRegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Activity{
		Name: "double",
		Handler: func(_ context.Context, params map[string]any) (map[string]any, error) {
			n, _ := params["n"].(float64)
			return map[string]any{"result": n * 2}, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := r.Invoke(context.Background(), "double", map[string]any{"n": float64(21)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["result"] != float64(42) {
		t.Errorf("expected 42, got %v", out["result"])
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	a := Activity{Name: "x", Handler: func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }}
	if err := r.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(a); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistryRejectsIncompleteActivities(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Activity{Name: ""}); err == nil {
		t.Error("expected an error for a nameless activity")
	}
	if err := r.Register(Activity{Name: "noHandler"}); err == nil {
		t.Error("expected an error for a handler-less activity")
	}
}

func TestRegistryInvokeUnknownActivity(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrUnknownActivity) {
		t.Fatalf("expected ErrUnknownActivity, got %v", err)
	}
}

func TestRegistryNamesAreSorted(t *testing.T) {
	r := NewRegistry()
	h := func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(Activity{Name: name, Handler: h}); err != nil {
			t.Fatal(err)
		}
	}
	names := r.Names()
	if len(names) != 3 || names[0] != "alpha" || names[2] != "zeta" {
		t.Errorf("expected sorted names, got %v", names)
	}
}
