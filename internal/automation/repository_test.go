package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/database"
	_ "github.com/mblarson/omnihome/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	scene := &Scene{
		Name:    "Reading",
		Enabled: true,
		Actions: []SceneAction{
			{DeviceID: "dev_1", IsOn: on(), Value: 60.0},
			{Selector: &Selector{Room: "Kitchen"}, IsOn: off(), Parallel: true, DelayMS: 500},
		},
	}
	if err := repo.Create(ctx, scene); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if scene.ID == "" || scene.Slug != "reading" {
		t.Errorf("generated id/slug = %q/%q", scene.ID, scene.Slug)
	}

	got, err := repo.Get(ctx, "reading")
	if err != nil {
		t.Fatalf("Get(slug) error = %v", err)
	}
	if diff := cmp.Diff(scene, got, cmpopts.IgnoreFields(Scene{}, "CreatedAt", "UpdatedAt")); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	got.Enabled = false
	got.Actions = got.Actions[:1]
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	reloaded, err := repo.Get(ctx, got.ID)
	if err != nil {
		t.Fatalf("Get(id) error = %v", err)
	}
	if reloaded.Enabled || len(reloaded.Actions) != 1 {
		t.Errorf("after update = %+v", reloaded)
	}

	if err := repo.Delete(ctx, got.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, got.ID); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
	if err := repo.Delete(ctx, got.ID); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
	if err := repo.Update(ctx, got); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("Update() of deleted scene error = %v", err)
	}
}

func TestSQLiteRepository_DuplicateSlug(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	first := &Scene{Name: "Party", Enabled: true, Actions: []SceneAction{{DeviceID: "dev_1", IsOn: on()}}}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second := &Scene{Name: "Party", Enabled: true, Actions: first.Actions}
	if err := repo.Create(ctx, second); !errors.Is(err, ErrSceneExists) {
		t.Errorf("Create() duplicate error = %v, want ErrSceneExists", err)
	}
}

func TestSeedDefaults(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	n, err := SeedDefaults(ctx, repo)
	if err != nil {
		t.Fatalf("SeedDefaults() error = %v", err)
	}
	if n != 4 {
		t.Errorf("seeded %d scenes, want 4", n)
	}

	scenes, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var names []string
	for _, s := range scenes {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"Morning", "Away", "Movie Night", "Bedtime"}, names); diff != "" {
		t.Errorf("scene order (-want +got):\n%s", diff)
	}
	if sel := scenes[1].Actions[0].Selector; sel == nil || sel.Type != device.TypeLight {
		t.Errorf("Away first action selector = %+v", sel)
	}

	n, err = SeedDefaults(ctx, repo)
	if err != nil || n != 0 {
		t.Errorf("second SeedDefaults() = %d, %v; want 0, nil", n, err)
	}
}

func TestDefaultScenesValidate(t *testing.T) {
	for _, s := range DefaultScenes() {
		if err := ValidateScene(&s); err != nil {
			t.Errorf("%s: %v", s.Name, err)
		}
	}
}
