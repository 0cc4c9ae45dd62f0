package pkg

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

var ContentType = struct {
	JSON string
	Text string
}{
	JSON: "application/json",
	Text: "text/plain",
}

func WriteTextResponseOK(w http.ResponseWriter, message string) {
	WriteResponseBytes(w, ContentType.Text, []byte(message), http.StatusOK)
}

// WriteJSONResponseOK writes the payload as JSON with status 200.
// Strings and byte slices are treated as already-encoded JSON,
// everything else is marshalled.
func WriteJSONResponseOK(w http.ResponseWriter, payload any) {
	switch p := payload.(type) {
	case string:
		WriteResponseBytes(w, ContentType.JSON, []byte(p), http.StatusOK)
	case []byte:
		WriteResponseBytes(w, ContentType.JSON, p, http.StatusOK)
	default:
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			log.Errorf("failed to marshal response payload: %s", err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		WriteResponseBytes(w, ContentType.JSON, payloadBytes, http.StatusOK)
	}
}

func WriteResponseBytesOK(w http.ResponseWriter, contentType string, message []byte) {
	WriteResponseBytes(w, contentType, message, http.StatusOK)
}

func WriteResponseBytes(w http.ResponseWriter, contentType string, message []byte, statusCode int) {
	if contentType != "" {
		w.Header().Add("Content-Type", contentType)
	}

	w.WriteHeader(statusCode)

	if _, err := w.Write(message); err != nil {
		log.Errorf("failed to write response [%s]: %s", message, err)
	}
}
