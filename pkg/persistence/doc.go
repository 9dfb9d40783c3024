// Package persistence stores property values across restarts.
//
// A Store writes a JSON snapshot of last-written property values with an
// atomic rename. It plugs into a Thing via the value-changed hook and
// restores values through the internal setter at startup:
//
//	store := persistence.NewStore(path, logger)
//	store.Load()
//	store.Restore(th)
//	th.SetValueChangedHook(store.Hook(th.ID()))
package persistence
