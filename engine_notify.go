package rbacAuth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/rbacAuth/notify"
)

// sendRequired delivers a message the current operation depends on. A
// failure is returned as ErrDelivery.
func (e *Engine) sendRequired(ctx context.Context, msg notify.Message) error {
	if timeout := e.config.Notify.SendTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := e.notifier.Send(ctx, msg); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.logger.Error("required notification failed", "kind", msg.Kind, "err", err)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// notice queues a best-effort message. It never fails the caller and
// waits at most Notify.EnqueueWait for queue space.
func (e *Engine) notice(ctx context.Context, acct *Account, subject, body string) {
	if e.notices == nil || acct == nil {
		return
	}
	e.notices.Enqueue(ctx, notify.Message{
		Kind:    notify.KindNotice,
		To:      acct.Email,
		Subject: subject,
		Body:    greeting(acct) + body,
	})
}

func greeting(acct *Account) string {
	name := acct.DisplayName
	if name == "" {
		name = acct.Email
	}
	return "Hello " + name + ",\n\n"
}

func otpMessage(acct *Account, code string, validFor string) notify.Message {
	return notify.Message{
		Kind:    notify.KindOTP,
		To:      acct.Email,
		Subject: "Your login code",
		Body: greeting(acct) +
			"Your one-time login code is " + code + ".\n" +
			"It expires in " + validFor + ". If you did not try to sign in, change your password.\n",
	}
}

func confirmationMessage(acct *Account, link string, fp Fingerprint, validFor string) notify.Message {
	return notify.Message{
		Kind:    notify.KindLoginConfirmation,
		To:      acct.Email,
		Subject: "Confirm new sign-in",
		Body: greeting(acct) +
			"A sign-in was attempted from an unrecognized " + string(fp.Channel) + " device.\n" +
			"If this was you, confirm it within " + validFor + ":\n\n" + link + "\n\n" +
			"If it was not you, ignore this email and change your password.\n",
	}
}

func resetMessage(acct *Account, link string, validFor string) notify.Message {
	return notify.Message{
		Kind:    notify.KindPasswordReset,
		To:      acct.Email,
		Subject: "Reset your password",
		Body: greeting(acct) +
			"Use the link below to choose a new password. It expires in " + validFor + ".\n\n" +
			link + "\n\n" +
			"If you did not request a reset you can ignore this email.\n",
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
