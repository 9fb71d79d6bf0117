// Package timing implements TimingEstimator from spec.md 4.6: per-backend
// network-time moving averages and per-SQL per-key cost moving averages,
// used by BatchScheduler to size flush deadlines and decide whether two
// batches' costs are close enough to merge.
package timing
