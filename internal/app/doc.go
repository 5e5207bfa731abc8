// Package app is the composition layer of the marketplace client.
//
// It turns a loaded configuration into a running client: a node client and
// contract binding, a wallet session backed by the configured store, one
// fetcher per entity and a view composer that renders them. Long-running
// parts (session resume, scheduled catalog refresh, the HTTP surface) are
// system.Services started and stopped together.
//
//	internal/app/
//	├── application.go   # wiring and lifecycle
//	├── httpapi/         # HTTP and websocket view surface
//	├── metrics/         # Prometheus collectors
//	└── system/          # service lifecycle manager
package app
