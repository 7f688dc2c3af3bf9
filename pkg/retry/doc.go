// Package retry runs an operation until it succeeds or a failure is final.
//
// The feed client uses it with a constant backoff and a BeforeRetry hook that
// asks the proxy rotator for a replacement proxy; returning an error from the
// hook ends the loop. Media downloads use ErrorTypeBackoff so that rate limit
// responses wait longer than plain network failures.
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetch(ctx)
//	}, retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: time.Second},
//		BeforeRetry: func(attempt int, err error) error {
//			return rotateProxy(ctx, err)
//		},
//	})
package retry
