// Package subscription tracks SNS topic subscriptions and their confirmation.
//
// A SubscriptionConfirmation message upserts the topic row. When auto-confirm
// is on, the service fetches the SubscribeURL once with a short timeout; a
// failed fetch leaves the row pending for manual confirmation.
package subscription
