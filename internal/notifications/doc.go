// Package notifications emits pipeline lifecycle events to operators over
// ntfy. Delivery is fire-and-forget: a slow or unreachable endpoint never
// blocks or fails the pipeline work that produced the event.
package notifications
