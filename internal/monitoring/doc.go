// Package monitoring exposes Prometheus metrics for the capability heap and
// the primitive lifecycle layer, plus a JSON-friendly snapshot for the
// inspector API.
package monitoring
