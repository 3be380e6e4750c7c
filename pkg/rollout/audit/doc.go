// Package audit persists a durable trail of rollout activity.
//
// Events published by the canary, rollback, update, and hot-reload
// components are converted into flat audit records and written to a SQLite
// database. Records can be queried by component, event type, policy, and
// time range, and a cron-driven scheduler prunes the table by age and by
// row count so the database stays bounded.
package audit
