// Package eventloop provides the single-threaded cooperative loop every
// sandbox call and host slot runs on.
//
// Work arrives as tasks (Post, safe from any goroutine), microtasks that run
// before the next task, and timers ordered by deadline. Off-loop operations
// such as network fetches take a Hold so Run keeps waiting for them, then
// Post their completion back onto the loop.
package eventloop
