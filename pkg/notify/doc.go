/*
Package notify turns status changes into user notifications.

Detect is a pure function comparing a node's stored status with a fresh
reconciliation result. It emits:

	offline        any -> offline, unless already offline
	online         offline -> online
	job_started    any -> running
	job_completed  running -> idle or queued

each gated by the owner's NotificationPreference. Liveness is compared
against TrackedNode.EffectiveLiveness, so an unknown result is never a
transition and a node that passes through unknown does not re-alert.

Notifier delivers one batch's events per owner through a Dispatcher.
Dispatchers that implement BatchDispatcher get a single call per owner;
others get one call per event. Delivery errors are logged, never returned.

Available dispatchers:

	LogDispatcher      writes events to the log
	DiscordDispatcher  posts to a Discord channel, mentioning linked users
	MultiDispatcher    fans out to several dispatchers
*/
package notify
