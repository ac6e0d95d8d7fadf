// Package daemon implements a weighted task queue, drained in bounded
// increments on an [eventloop.Loop] (or any compatible host).
//
// Each tick runs tasks in FIFO order until the next task's weight would take
// the tick over its budget. A task heavier than the whole budget still runs,
// alone, so it cannot starve. Tasks that finish asynchronously keep their
// weight charged until released, throttling subsequent ticks.
package daemon
