// Package bucketpath builds the partition key layout of the billing
// bucket: database -> account -> year -> month.
package bucketpath

import "fmt"

const root = "SPACE_ONE/billing"

// Database returns the prefix of one billing partition, with a trailing
// slash so delimiter listings group account folders.
func Database(database string) string {
	return fmt.Sprintf("%s/database=%s/", root, database)
}

// Month returns the prefix holding one account's objects for one
// billing period.
func Month(database, accountID, year, month string) string {
	return fmt.Sprintf("%s/database=%s/account_id=%s/year=%s/month=%s", root, database, accountID, year, month)
}
