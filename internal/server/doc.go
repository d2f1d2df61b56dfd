// Package server implements the BlinkDB network layer.
//
// A single event-loop goroutine owns the listening socket, an epoll
// instance, every connection's buffers, and the command registry; all
// storage engine calls are issued from it. Client sockets are
// non-blocking and multiplexed level-triggered: read interest is
// permanent, write interest is added only while a connection has queued
// replies and dropped once its output drains.
//
// The loop is woken for shutdown through a pipe registered in the
// poller, so Stop works from any goroutine (typically a signal handler).
package server
