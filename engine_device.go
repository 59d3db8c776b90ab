package rbacAuth

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/rbacAuth/internal/tokens"
)

// deviceUpdateAttempts bounds the retries of a device list update that
// lost a race with a concurrent one.
const deviceUpdateAttempts = 3

var errDevicesContended = errors.New("device list changed concurrently")

// IsRecognized reports whether fp is one of acct's confirmed devices. With
// device tracking disabled every fingerprint is recognized.
func (e *Engine) IsRecognized(acct *Account, fp Fingerprint) bool {
	if !e.config.Device.Enabled {
		return true
	}
	return acct.HasDevice(fp)
}

// RecordPendingConfirmation stores a confirmation token bound to fp,
// replacing any earlier one, and emails the confirmation link. It returns
// the raw token.
func (e *Engine) RecordPendingConfirmation(ctx context.Context, acct *Account, fp Fingerprint) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if acct == nil || fp.IsZero() {
		return "", ErrValidation
	}

	raw, err := tokens.New()
	if err != nil {
		return "", err
	}
	pending := &PendingConfirmation{
		PendingToken: PendingToken{
			Hash:      tokens.Hash(raw),
			ExpiresAt: e.now().Add(e.config.Device.ConfirmationTTL),
		},
		Fingerprint: fp,
	}
	if err := e.store.Update(ctx, acct.ID, AccountPatch{Confirmation: pending}); err != nil {
		return "", e.storageError("store confirmation token", err)
	}
	acct.Confirmation = pending

	link := e.config.link(e.config.Device.ConfirmPath, raw)
	msg := confirmationMessage(acct, link, fp, humanDuration(e.config.Device.ConfirmationTTL))
	if err := e.sendRequired(ctx, msg); err != nil {
		return "", err
	}

	e.metricInc(MetricDeviceConfirmationRequired)
	return raw, nil
}

// ConfirmDevice redeems a confirmation token. The fingerprint it was
// issued for joins the recognized devices and the token is cleared in the
// same update. A token belonging to an inactive account is left unused and
// ErrAccountInactive is returned.
func (e *Engine) ConfirmDevice(ctx context.Context, raw string) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	normalized, err := tokens.Normalize(raw)
	if err != nil {
		e.metricInc(MetricDeviceConfirmFailure)
		return nil, ErrTokenInvalidOrExpired
	}
	hash := tokens.Hash(normalized)

	for range deviceUpdateAttempts {
		now := e.now()
		acct, err := e.store.FindByToken(ctx, TokenConfirmation, hash, now)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				e.metricInc(MetricDeviceConfirmFailure)
				return nil, ErrTokenInvalidOrExpired
			}
			return nil, e.storageError("find confirmation token", err)
		}
		if !acct.Active() {
			return nil, ErrAccountInactive
		}
		fp := acct.Confirmation.Fingerprint

		patch := AccountPatch{
			Devices:           e.withDevice(acct.Devices, fp, now),
			ClearConfirmation: true,
		}
		n, err := e.store.UpdateWhere(ctx,
			AccountFilter{
				ID:          acct.ID,
				Field:       TokenConfirmation,
				Hash:        hash,
				ValidAt:     now,
				Status:      StatusActive,
				SameDevices: true,
				Devices:     acct.Devices,
			},
			patch)
		if err != nil {
			return nil, e.storageError("consume confirmation token", err)
		}
		if n == 0 {
			// Lost a race with another update; the next lookup decides.
			continue
		}
		patch.Apply(acct, now)

		e.metricInc(MetricDeviceConfirmed)
		e.notice(ctx, acct, "New device confirmed",
			"A new "+string(fp.Channel)+" device was confirmed for your account.\n")
		return acct, nil
	}
	return nil, e.storageError("consume confirmation token", errDevicesContended)
}

// trustDevice records fp without confirmation.
func (e *Engine) trustDevice(ctx context.Context, acct *Account, fp Fingerprint) error {
	for range deviceUpdateAttempts {
		now := e.now()
		patch := AccountPatch{Devices: e.withDevice(acct.Devices, fp, now)}
		n, err := e.store.UpdateWhere(ctx,
			AccountFilter{ID: acct.ID, SameDevices: true, Devices: acct.Devices},
			patch)
		if err != nil {
			return e.storageError("record device", err)
		}
		if n == 1 {
			patch.Apply(acct, now)
			return nil
		}

		fresh, err := e.store.FindByID(ctx, acct.ID)
		if err != nil {
			return e.storageError("reload account", err)
		}
		acct.Devices = fresh.Devices
		if acct.HasDevice(fp) {
			return nil
		}
	}
	return e.storageError("record device", errDevicesContended)
}

func (e *Engine) hasChannel(acct *Account, ch Channel) bool {
	for _, d := range acct.Devices {
		if d.Channel == ch {
			return true
		}
	}
	return false
}

// withDevice returns a copy of devices with fp added or refreshed. When a
// channel exceeds Device.MaxPerChannel the least recently seen entries on
// that channel are dropped.
func (e *Engine) withDevice(devices []Device, fp Fingerprint, now time.Time) []Device {
	out := make([]Device, 0, len(devices)+1)
	found := false
	for _, d := range devices {
		if d.Channel == fp.Channel && d.Value == fp.Value {
			d.LastSeen = now
			found = true
		}
		out = append(out, d)
	}
	if !found {
		out = append(out, Device{Channel: fp.Channel, Value: fp.Value, LastSeen: now})
	}

	limit := e.config.Device.MaxPerChannel
	if limit <= 0 {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	kept := out[:0]
	perChannel := make(map[Channel]int)
	for _, d := range out {
		if perChannel[d.Channel] >= limit {
			continue
		}
		perChannel[d.Channel]++
		kept = append(kept, d)
	}
	return kept
}
