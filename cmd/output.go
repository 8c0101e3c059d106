package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// writeJSON pretty-prints v to w.
func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, "error: encode json: %v\n", err)
	}
}
