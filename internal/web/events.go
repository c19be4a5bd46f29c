package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
	"github.com/ahinestrog/fubooks-storefront/internal/notify"
)

// cartEvents streams the session's cart and toasts as server-sent events:
// "cart" carries a cart view, "notice" a notification. Every open tab of the
// session sees changes made by any other.
func (s *Server) cartEvents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snaps := make(chan cart.Snapshot, 1)
	stopCart := sess.Cart.Subscribe(func(snap cart.Snapshot) {
		// keep only the newest snapshot
		select {
		case <-snaps:
		default:
		}
		select {
		case snaps <- snap:
		default:
		}
	})
	defer stopCart()

	notices := make(chan notify.Notice, 16)
	stopNotices := sess.Notices.Subscribe(func(n notify.Notice) {
		select {
		case notices <- n:
		default:
		}
	})
	defer stopNotices()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	current := sess.Cart.Snapshot()
	last := current.Version
	if err := writeEvent(w, "cart", viewOf(current)); err != nil {
		return
	}
	flusher.Flush()

	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()
	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case snap := <-snaps:
			if snap.Version <= last {
				continue
			}
			last = snap.Version
			err = writeEvent(w, "cart", viewOf(snap))
		case n := <-notices:
			err = writeEvent(w, "notice", n)
		case <-ping.C:
			_, err = io.WriteString(w, ": ping\n\n")
		}
		if err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
