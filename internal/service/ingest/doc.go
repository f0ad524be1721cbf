// Package ingest turns a raw SNS webhook body into stored state: it
// classifies the envelope, appends each recipient to the notification log,
// updates the blacklist ledger and publishes one event per stored recipient.
// The notification row and its ledger update for one recipient commit
// together through a Transactor.
package ingest
