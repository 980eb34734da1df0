// Package sweeper reclaims expired connection and session records.
//
// Staleness is handled declaratively: records carry a TTL refreshed by
// activity, and the sweeper removes whatever outlived it. This makes
// the system self-heal from abrupt network loss without per-call
// timeouts.
package sweeper
