// Package core contains the shared leaf types of dialogmesh: the per-request
// conversation State, the outbound Event streaming protocol, the bounded
// Emitter every event producer funnels through, and the error taxonomy used
// by the graph executor, router and memory tiers.
package core
