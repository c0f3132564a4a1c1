// Package cohook runs synchronous-looking socket code as cooperatively
// scheduled tasks. Socket calls made through Hooks from inside a task
// never block the thread: the descriptor is non-blocking at the OS
// level, and a call that would block suspends the task until the
// descriptor becomes ready or the descriptor's timeout passes,
// whichever comes first. The task is resumed exactly once with a
// definite outcome.
//
// Key components:
//
//   - TimerManager: arms, disarms and expires Timers over a
//     fixed-capacity deadline heap, against a clock sampled once per
//     scheduling pass.
//
//   - Registry: a dense table from descriptor number to HookState
//     (tracked, application non-blocking, read and write timeouts).
//
//   - Hooks: replacements for socket, close, connect, read, write,
//     send, recv, sendto, recvfrom, setsockopt, fcntl, ioctl, listen,
//     bind and accept that decide between native pass-through and
//     emulated blocking.
//
//   - Scheduler and Task: the single-threaded run loop, backed by
//     coroutines and an epoll readiness source, plus WaitGroup, Mutex and
//     Group for coordinating tasks.
//
// Readiness is dispatched before timers expire within a pass, so a
// descriptor that becomes ready in the same pass its deadline passes
// completes rather than timing out.
package cohook
