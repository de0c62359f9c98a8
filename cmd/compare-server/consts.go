package main

import "time"

// shutdownGrace bounds how long serve/benchmark wait for in-flight
// connections to drain once a shutdown signal arrives.
const shutdownGrace = 10 * time.Second
