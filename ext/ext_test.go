package ext

import (
	"context"
	"slices"
	"testing"

	"github.com/ardnew/cask/engine"
)

func TestCatalog(t *testing.T) {
	want := []string{"file", "flag", "http", "queue", "sqlite", "tasks", "tdict", "tlist", "util"}

	if got := slices.Collect(Catalog().Names()); !slices.Equal(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}

	dir := t.TempDir()

	e, err := engine.New(
		engine.WithCatalog(Catalog()),
		engine.WithExtensionOptions(map[string]any{"file_root": dir, "sql_root": dir}))
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	for _, name := range want {
		if ok, err := e.LoadExtension(t.Context(), name); !ok || err != nil {
			t.Errorf("LoadExtension(%s) = %v, %v", name, ok, err)
		}
	}

	if got := e.ListLoadedExtensions(); !slices.Equal(got, want) {
		t.Errorf("ListLoadedExtensions() = %v", got)
	}
}
