package notify

import (
	"fmt"
	"time"

	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/google/uuid"
	"github.com/hako/durafmt"
)

// Detect compares a node's stored status with a fresh reconciliation result
// and returns the events the owner should receive, honouring prefs.
//
// Liveness is edge-triggered against the effective previous liveness, so an
// unknown result never produces an online or offline event and an
// offline, unknown, offline sequence alerts only once. A low balance alerts
// on the reading that crosses below the threshold and again only after a
// top-up clears the flag.
func Detect(previous *types.TrackedNode, result *types.ReconciliationResult, prefs *types.NotificationPreference) []types.NotificationEvent {
	if previous == nil || result == nil {
		return nil
	}
	if prefs == nil {
		prefs = types.DefaultNotificationPreference(previous.Owner)
	}

	now := result.CheckedAt
	if now.IsZero() {
		now = time.Now()
	}

	var events []types.NotificationEvent
	emit := func(t types.EventType, msg string) {
		events = append(events, types.NotificationEvent{
			ID:        uuid.New().String(),
			Type:      t,
			Owner:     previous.Owner,
			NodeID:    previous.ID,
			NodeName:  previous.DisplayName(),
			Address:   previous.Address,
			Message:   msg,
			Vibration: prefs.Vibration,
			Sound:     prefs.Sound,
			Timestamp: now,
		})
	}

	prevLive := previous.EffectiveLiveness()
	switch result.Liveness {
	case types.LivenessOffline:
		if prevLive != types.LivenessOffline && prefs.NotifyOffline {
			emit(types.EventOffline, offlineMessage(previous, prevLive, now))
		}
	case types.LivenessOnline:
		if prevLive == types.LivenessOffline && prefs.NotifyOnline {
			emit(types.EventOnline, fmt.Sprintf("%s is back online", previous.DisplayName()))
		}
	}

	prevJob := previous.JobState.OrIdle()
	newJob := result.JobState.OrIdle()
	switch {
	case newJob == types.JobStateRunning && prevJob != types.JobStateRunning:
		if prefs.NotifyJobStarted {
			emit(types.EventJobStarted, fmt.Sprintf("%s started running a job", previous.DisplayName()))
		}
	case prevJob == types.JobStateRunning && newJob != types.JobStateRunning:
		if prefs.NotifyJobCompleted {
			emit(types.EventJobCompleted, fmt.Sprintf("%s finished its job and is now %s", previous.DisplayName(), newJob))
		}
	}

	if b := result.Balance; b != nil && b.Low && !previous.LowBalance && prefs.NotifyLowBalance {
		emit(types.EventLowBalance, fmt.Sprintf("%s is low on SOL (%.4f SOL), top up to keep posting results",
			previous.DisplayName(), b.SOL))
	}

	return events
}

func offlineMessage(previous *types.TrackedNode, prevLive types.Liveness, now time.Time) string {
	name := previous.DisplayName()
	if prevLive != types.LivenessOnline || previous.LastChecked.IsZero() || now.Before(previous.LastChecked) {
		return fmt.Sprintf("%s went offline", name)
	}
	since := now.Sub(previous.LastChecked).Truncate(time.Second)
	if since < time.Second {
		return fmt.Sprintf("%s went offline", name)
	}
	return fmt.Sprintf("%s went offline, last seen online %s ago", name, durafmt.Parse(since).LimitFirstN(2).String())
}
