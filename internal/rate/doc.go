// Package rate throttles refresh attempts per session with fixed-window
// counters kept in Redis under <prefix>:rl:<sessionID>.
package rate
