package automation

import (
	"context"
	"fmt"

	"github.com/mblarson/omnihome/internal/device"
)

func on() *bool  { return device.Bool(true) }
func off() *bool { return device.Bool(false) }

// DefaultScenes is the scene strip shown on a fresh install.
func DefaultScenes() []Scene {
	return []Scene{
		{
			ID: "scene_morning", Name: "Morning", Slug: "morning", Icon: "sunrise", Enabled: true, SortOrder: 1,
			Description: "Lights up, heating on, curtains open.",
			Actions: []SceneAction{
				{Selector: &Selector{Type: device.TypeLight, Room: "Kitchen"}, IsOn: on(), Value: 100.0, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeLight, Room: "Living Room"}, IsOn: on(), Value: 80.0, Parallel: true, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeThermostat}, IsOn: on(), Value: 21.0, Parallel: true, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeCurtain}, IsOn: on(), Value: 100.0, Parallel: true, ContinueOnError: true},
			},
		},
		{
			ID: "scene_away", Name: "Away", Slug: "away", Icon: "door-closed", Enabled: true, SortOrder: 2,
			Description: "Everything off, doors locked, cameras recording.",
			Actions: []SceneAction{
				{Selector: &Selector{Type: device.TypeLight}, IsOn: off(), ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeSpeaker}, IsOn: off(), Parallel: true, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeOutlet}, IsOn: off(), Parallel: true, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeLock}, IsOn: on(), Value: "Locked", ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeCamera}, IsOn: on(), Value: "Recording", Parallel: true, ContinueOnError: true},
			},
		},
		{
			ID: "scene_movie_night", Name: "Movie Night", Slug: "movie-night", Icon: "film", Enabled: true, SortOrder: 3,
			Description: "Dim the living room and close the curtains.",
			Actions: []SceneAction{
				{Selector: &Selector{Type: device.TypeLight, Room: "Living Room"}, IsOn: on(), Value: 20.0, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeLight, Room: "Kitchen"}, IsOn: off(), Parallel: true, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeCurtain, Room: "Living Room"}, IsOn: on(), Value: 0.0, Parallel: true, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeSpeaker, Room: "Living Room"}, IsOn: on(), Parallel: true, ContinueOnError: true},
			},
		},
		{
			ID: "scene_bedtime", Name: "Bedtime", Slug: "bedtime", Icon: "moon", Enabled: true, SortOrder: 4,
			Description: "Lights out, door locked, heating lowered.",
			Actions: []SceneAction{
				{Selector: &Selector{Type: device.TypeLight}, IsOn: off(), ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeLock}, IsOn: on(), Value: "Locked", Parallel: true, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeThermostat}, Value: 18.0, Parallel: true, ContinueOnError: true},
				{Selector: &Selector{Type: device.TypeLight, Room: "Bedroom"}, IsOn: on(), Value: 10.0, ContinueOnError: true},
			},
		},
	}
}

// SeedDefaults inserts DefaultScenes when the repository holds no scenes.
// It returns the number of scenes created.
func SeedDefaults(ctx context.Context, repo Repository) (int, error) {
	existing, err := repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing scenes: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	defaults := DefaultScenes()
	for i := range defaults {
		if err := repo.Create(ctx, &defaults[i]); err != nil {
			return i, fmt.Errorf("seeding scene %q: %w", defaults[i].Name, err)
		}
	}
	return len(defaults), nil
}
