// Package automation provides the dashboard's scenes.
//
// A scene is an ordered list of actions. Each action targets one device by
// ID or every device matching a Selector (type and/or room) and sets its
// on/off state and value. Actions run in groups: an action with Parallel
// set joins the previous group, otherwise it starts a new one. Groups run
// one after another; actions in a group run concurrently.
//
//	repo := automation.NewSQLiteRepository(db.DB)
//	if _, err := automation.SeedDefaults(ctx, repo); err != nil {
//	    return err
//	}
//	engine := automation.NewEngine(repo, store, hub, log)
//	exec, err := engine.Activate(ctx, "movie-night", device.SourceUser)
//
// A fresh install is seeded with Morning, Away, Movie Night and Bedtime.
package automation
