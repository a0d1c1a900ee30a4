package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"cardtable/internal/session"
)

func writeSSE(w http.ResponseWriter, ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if ev.Seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %s\n", strconv.FormatInt(ev.Seq, 10)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Kind); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

func writeSSEPing(w http.ResponseWriter) error {
	_, err := fmt.Fprint(w, "event: ping\ndata: {}\n\n")
	return err
}
