// Package ledger implements the blacklist ledger: one denormalized record per
// lower-cased email with a reason, a bounce severity and an occurrence count
// that only ever increases until the row is removed.
//
// Every mutation goes through Repository.Upsert, which must serialize writers
// per email so concurrent bounces for one address never lose an increment.
// The service layer holds the update policy and never imports database/sql.
package ledger
