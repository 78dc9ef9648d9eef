// Package dashboard assembles the views of one dashboard process.
//
// A Board owns everything the views share and one refresh coordinator per
// configured view:
//
//   - the auto-refresh preference.Store and its broadcast channel
//   - the staleness cache, keyed by view name and query parameters
//   - one gate.Gate and refresh.Coordinator per view
//
// # Lifecycle
//
//	views, err := dashboard.BuildViews(cfg)
//	board := dashboard.New(store, cache, views, dashboard.WithMetrics(metrics))
//
//	go board.Start(ctx) // mounts every view, blocks until ctx is done
//	...
//	board.Stop()        // unmounts every view
//
// A Board is single-use in the same way as its coordinators: after Stop the
// views are unmounted for good and a new Board must be built.
//
// # Preference changes
//
// The board subscribes to the store to log and count preference changes. The
// views subscribe on their own when mounted, so a toggle in any view, through
// the board or from another process reaches every mounted view.
package dashboard
