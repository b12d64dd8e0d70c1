// Package prometheus renders famguard counters and the authentication
// latency histogram in the Prometheus text exposition format. Mount
// Exporter.Handler on a scrape path; nothing is registered globally.
package prometheus
