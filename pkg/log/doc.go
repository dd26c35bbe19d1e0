/*
Package log provides structured logging built on zerolog.

A single global Logger is initialized once via Init and handed out to every
other package as either the raw Logger or a component-scoped child created
with WithComponent. DebugFlag output is additionally gated by category
flags read from $SLURM_DEBUG_FLAGS (see DebugEnabled), mirroring the
original daemon's log_flag() categories (NET, WORKQ, SACK, ...): a category
not listed there is silent even at DebugLevel. Plain Debug() calls on a
logger are gated by the level only.
*/
package log
