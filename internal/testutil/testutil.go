// Package testutil provides test utilities for viewgraph, including:
//   - Miniredis helpers for unit tests (miniredis.go)
//   - The fraud analytics schema used across package tests (fixtures.go)
//   - Redis container helpers for integration tests (redis.go)
//
// Integration test utilities require Docker and are gated behind the "integration"
// build tag. To run integration tests:
//
//	go test -tags=integration ./...
//
// Unit test helpers do not require Docker and work with regular tests.
package testutil
