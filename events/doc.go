// Package events connects the dashboard caches to order and table writes.
//
// Writers publish JSON mutation events on NATS. The Handler purges the
// cached card listings and badge counts before acknowledging an event, then
// announces the purge on an AMQP fanout exchange so open dashboards refetch.
package events
