// Package config loads slurm.conf-style key=value configuration through
// viper, either from a local file (default /etc/slurm/slurm.conf,
// overridable with $SLURM_CONF or -f) or by fetching it from a running
// controller (--conf-server host[:port]) and caching the result to disk.
// A filesystem watch on that cache directory drives AuthProvider
// reconfiguration when a fetched config changes underneath a running
// daemon.
package config
