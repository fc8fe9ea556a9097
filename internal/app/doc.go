// Package app provides the application composition layer for the story
// service.
//
// # Architecture Role
//
// The app package sits above the domain and storage layers and is responsible
// for composing them into a running application. It is NOT a business logic
// layer - business logic belongs in internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── story/          # Stories and their lifecycle states
//	│   ├── engagement/     # Views, reactions, viewer profiles
//	│   └── quota/          # Tier policies and the credit ledger
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (StoryStore, QuotaStore, etc.)
//	│   ├── memory/         # In-memory implementation for testing
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Business logic (stories, engagement, quota,
//	│                       # disclosure) plus the sweeper and retention jobs
//	├── httpapi/            # HTTP API handlers, routing, and the audit trail
//	├── system/             # Service lifecycle management
//	└── metrics/            # Prometheus collectors and HTTP instrumentation
//
// # Responsibilities
//
// The app package is responsible for:
//
//   - Composing services from internal/app/services/ with their dependencies
//   - Defining storage interfaces that services depend on
//   - Providing domain models shared across services
//   - Exposing HTTP API endpoints for external access
//   - Managing application-level concerns (metrics, lifecycle, audit)
//
// # Dependency Direction
//
// The dependency flow is:
//
//	cmd/storyd/
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/services/ (business logic)
//	      │           │
//	      │           └──► internal/app/storage/ (interfaces)
//	      │
//	      └──► internal/platform/ (drivers, migrations)
//
// # Example: Adding a New Domain
//
// When adding a new domain (e.g., "highlights"):
//
//  1. Create domain models in internal/app/domain/highlights/
//  2. Add a storage interface to internal/app/storage/interfaces.go
//  3. Implement storage in internal/app/storage/postgres/ and memory/
//  4. Create the service in internal/app/services/highlights/service.go
//  5. Wire the service in internal/app/application.go
//  6. Add HTTP handlers in internal/app/httpapi/handler.go
package app
