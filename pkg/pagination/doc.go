// Package pagination drives one cursor-paginated query to exhaustion.
//
// A Pager moves through START, FETCHING and HAS_MORE until it reaches DONE
// or FAILED. Every request first waits on the rate limiter for its endpoint
// class. Retryable failures reissue the same request, with the same
// continuation token, up to Config.MaxRetries times; the budget resets after
// each successful page.
//
// A query whose first page is empty ends at once. A query that hits its
// endpoint's page cap ends DONE even if the server still offers a token.
package pagination
