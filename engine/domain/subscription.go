package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Channel is a notification delivery medium.
type Channel string

const (
	ChannelConsole Channel = "console"
	ChannelSMS     Channel = "sms"
	ChannelEmail   Channel = "email"
	ChannelPush    Channel = "push"
)

// DefaultNotifyBeforeSec applies when a subscription's window is unparseable.
const DefaultNotifyBeforeSec = 300

// DefaultDelayThresholdSec is the policy delay threshold when none is set.
const DefaultDelayThresholdSec = 900

// Policy tunes delivery for one subscription.
type Policy struct {
	NotifyOnce        bool `json:"notify_once" yaml:"notify_once"`
	DelayThresholdSec int  `json:"delay_threshold_sec" yaml:"delay_threshold_sec"`
}

// DefaultPolicy returns the policy applied to new subscriptions.
func DefaultPolicy() Policy {
	return Policy{DelayThresholdSec: DefaultDelayThresholdSec}
}

// RawSeconds is a seconds value exactly as the subscription store holds it.
// It may be a number or a string and is only interpreted by Seconds.
type RawSeconds string

// UnmarshalJSON accepts both JSON numbers and strings.
func (r *RawSeconds) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = RawSeconds(s)
		return nil
	}
	*r = RawSeconds(strings.TrimSpace(string(b)))
	return nil
}

// Seconds parses the value, falling back to def.
func (r RawSeconds) Seconds(def int) int {
	s := strings.TrimSpace(string(r))
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	return def
}

// Subscription is a standing request to be alerted when a bus nears a stop.
type Subscription struct {
	ID              int64      `json:"id" yaml:"id"`
	UserID          string     `json:"user_id" yaml:"user_id"`
	BusID           string     `json:"bus_id" yaml:"bus_id"`
	StopID          string     `json:"stop_id" yaml:"stop_id"`
	NotifyBeforeSec RawSeconds `json:"notify_before_sec" yaml:"notify_before_sec"`
	Channel         Channel    `json:"channel" yaml:"channel"`
	Policy          Policy     `json:"policy" yaml:"policy"`
	Active          bool       `json:"active" yaml:"active"`
	CreatedAt       time.Time  `json:"created_at" yaml:"created_at"`
}

// NotifyWindow returns the alert window in seconds.
func (s Subscription) NotifyWindow() int {
	return s.NotifyBeforeSec.Seconds(DefaultNotifyBeforeSec)
}

// Complete reports whether the subscription names a user, bus and stop.
func (s Subscription) Complete() bool {
	return strings.TrimSpace(s.UserID) != "" &&
		strings.TrimSpace(s.BusID) != "" &&
		strings.TrimSpace(s.StopID) != ""
}

// DeliveryChannel returns the configured channel, console when unset.
func (s Subscription) DeliveryChannel() Channel {
	if s.Channel == "" {
		return ChannelConsole
	}
	return Channel(strings.ToLower(string(s.Channel)))
}

// NotificationEvent records one delivered alert.
type NotificationEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BusID     string    `json:"bus_id"`
	StopID    string    `json:"stop_id"`
	ETASec    int       `json:"eta_sec"`
	Channel   Channel   `json:"channel"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
