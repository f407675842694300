// Package metrics implements a concurrent, per-label-set metric aggregation
// core: accumulators that fold observed values into a count, a sum, an
// optional quantile estimate, and an optional bucketed histogram, grouped
// into named families and snapshotted as flat, labeled sample sequences
// compatible with pull-based exposition.
//
// Observations are safe from many writers while a reader collects; collection
// never blocks observation and is not a linearizable snapshot: values read
// for count, sum, quantiles, and buckets may reflect slightly different
// instants when observations race with collection, which is acceptable for
// metrics reporting.
//
// All validation happens at construction time. Observe and Collect never fail
// for validly constructed state.
package metrics
