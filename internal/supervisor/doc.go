// Watchvault - Incremental Viewing History Warehouse
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

/*
Package supervisor runs the long-lived services of "watchvault serve" under
a suture v4 supervisor tree.

	RootSupervisor ("watchvault")
	├── PipelineSupervisor ("pipeline-layer")
	│   └── ScheduleService (when RUN_INTERVAL > 0)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed service is restarted with suture's backoff; a failure in one layer
does not stop the other. Cancelling the context passed to Serve shuts the
whole tree down, waiting up to TreeConfig.ShutdownTimeout per service.

Supervisor events are logged through sutureslog, which needs a *slog.Logger:

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
