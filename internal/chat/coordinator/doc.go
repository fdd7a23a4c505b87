// Package coordinator is the heart of the chat pipeline. One streamed
// exchange flows: validate input, open the session's single stream
// slot, register the stream id, queue the transport call, accumulate
// chunks in arrival order, then resolve into exactly one finalized
// message or one error. Registry membership gates every delivery, so a
// cancelled exchange goes silent immediately while the transport call
// drains in the background.
package coordinator
