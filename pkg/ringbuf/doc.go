// Package ringbuf provides a fixed-capacity FIFO buffer that silently
// drops the oldest element once full. The tracker uses it to keep
// interaction history bounded no matter how long a session runs.
package ringbuf
