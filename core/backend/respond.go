package backend

import (
	"bytes"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/autorest/core"
)

// respond writes v as JSON with the given status
func respond(w http.ResponseWriter, status int, v interface{}) {
	jsonData, err := json.MarshalWithOption(v, json.DisableHTMLEscape())
	if err != nil {
		http.Error(w, "Error 4701", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}

// respondError writes the JSON rendering of err with the given status
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(errorBody(err))
}

// errorBody renders err to JSON. Typed errors render their own fields, all other
// errors become {"name":"Error","message":...}.
func errorBody(err error) []byte {
	jsonData, merr := json.MarshalWithOption(err, json.DisableHTMLEscape())
	if merr != nil || bytes.Equal(jsonData, []byte("{}")) || bytes.Equal(jsonData, []byte("null")) {
		jsonData, _ = json.MarshalWithOption(core.NewError("Error", err.Error()), json.DisableHTMLEscape())
	}
	return jsonData
}

// readBody parses the request body as a JSON object. An empty body yields an
// empty object.
func readBody(r *http.Request) (map[string]interface{}, error) {
	body := map[string]interface{}{}
	if r.Body == nil {
		return body, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, core.NewError("InputError", "cannot read body: "+err.Error())
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, core.NewError("InputError", "invalid JSON body: "+err.Error())
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	return body, nil
}
