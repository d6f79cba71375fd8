package slackapi

import (
	"errors"
	"net/http"

	"github.com/slack-go/slack"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
)

// mapError classifies a slack-go error into the shared taxonomy. The client
// itself never retries; it only reports what the caller may do.
func mapError(op, entity string, err error) error {
	if err == nil {
		return nil
	}

	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		e := apierr.New(apierr.KindRetryable, op, entity, err)
		e.RetryAfter = rle.RetryAfter
		return e
	}

	var sce slack.StatusCodeError
	if errors.As(err, &sce) {
		switch {
		case sce.Code == http.StatusUnauthorized || sce.Code == http.StatusForbidden:
			return apierr.New(apierr.KindAuth, op, entity, err)
		case sce.Code == http.StatusNotFound:
			return apierr.New(apierr.KindNotFound, op, entity, err)
		case sce.Code == http.StatusTooManyRequests || sce.Code >= 500:
			return apierr.New(apierr.KindRetryable, op, entity, err)
		}
		return apierr.New(apierr.KindFatal, op, entity, err)
	}

	// Web API "ok": false errors surface as plain error strings.
	switch err.Error() {
	case "channel_not_found", "user_not_found", "thread_not_found", "users_not_found":
		return apierr.New(apierr.KindNotFound, op, entity, err)
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "token_expired", "missing_scope", "not_in_channel":
		return apierr.New(apierr.KindAuth, op, entity, err)
	case "ratelimited", "service_unavailable", "internal_error", "fatal_error":
		return apierr.New(apierr.KindRetryable, op, entity, err)
	}

	if apierr.KindOf(err) == apierr.KindCancelled {
		return apierr.New(apierr.KindCancelled, op, entity, err)
	}
	return apierr.New(apierr.KindFatal, op, entity, err)
}
