package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vitawell/companion/internal/chat/event"
	"github.com/vitawell/companion/internal/shared/errs"
)

// maxFrameSize bounds a single stream frame. Chunks are small; anything
// past this is a protocol violation, not a big answer.
const maxFrameSize = 1 << 20

// OpenStream posts payload and consumes the server-sent event stream
// from the response, decoding each data frame and handing it to
// onEvent. The call blocks until the stream ends.
//
// onEvent is invoked synchronously from this goroutine and never after
// OpenStream returns. Delivery stops at the first terminal frame
// (completion or backend failure); the remainder of the body, if any,
// is discarded.
//
// Cancelling ctx aborts the read and surfaces as a KindCancelled error.
// A stream that ends without a terminal frame returns nil; it is the
// caller's job to treat the missing completion as a protocol error,
// since only the caller knows whether it cancelled on purpose.
func (c *Client) OpenStream(ctx context.Context, endpoint string, payload any, onEvent func(event.Event)) error {
	if err := c.admit(ctx); err != nil {
		return err
	}
	report, err := c.breaker.Allow()
	if err != nil {
		return errs.Wrap(errs.KindNetwork, err, "backend unavailable")
	}

	resp, err := c.streams.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		SetBody(payload).
		Post(endpoint)
	if err != nil {
		report(false)
		return classify(err, fmt.Sprintf("POST %s", endpoint))
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 300 {
		report(resp.StatusCode() < 500)
		raw, _ := io.ReadAll(io.LimitReader(body, maxFrameSize))
		return errs.Server(resp.StatusCode(), snippet(raw))
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Field lines other than data (event, id, retry) carry
			// nothing this protocol uses.
			continue
		}

		ev, err := event.Decode([]byte(strings.TrimSpace(data)))
		if err != nil {
			report(false)
			return err
		}
		onEvent(ev)

		switch ev.(type) {
		case event.Complete, event.Failure:
			report(true)
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		report(false)
		return classify(ctxErrOr(ctx, err), "stream read")
	}

	// EOF without a terminal frame. The transport layer was healthy.
	report(true)
	return nil
}

// ctxErrOr prefers the context's own error so that a cancel-induced
// read failure classifies as cancellation rather than a network fault.
func ctxErrOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
