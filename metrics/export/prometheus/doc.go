// Package prometheus renders engine metrics in the Prometheus text
// exposition format. The exporter reads counter snapshots on demand; it keeps
// no state of its own and one engine can feed any number of exporters.
package prometheus
