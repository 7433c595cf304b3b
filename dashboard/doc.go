// Package dashboard builds the Orders Master order cards.
//
// A listing request flows through the response cache; on a miss the filter
// compiler selects one page of order ids, the Materializer reads the batch
// from the store with one query per concern, prices addons for the batch and
// builds the cards on a small worker pool. Mutation events purge the card
// listings and the badge counts through the Invalidate hooks.
package dashboard
