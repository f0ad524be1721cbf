// Package monitor decides whether a prospective send may proceed.
//
// Evaluate consults the blacklist ledger and the notification history with a
// fixed rule order. CheckBeforeSend is the pre-send hook for outbound mail and
// fails closed: a storage error refuses the send. CanSend adds the email
// validation capability on top of the ledger.
package monitor
