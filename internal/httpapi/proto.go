package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sio2000/gymUI-sub000/internal/checkin/types"
)

// maxRequestBody caps scan bodies in either encoding.  A scan is a station
// id plus at most a few hundred bytes of QR payload.
const maxRequestBody = 4096

const contentTypeProtobuf = "application/x-protobuf"

var errBodyTooLarge = errors.New("request body too large")

// isProtobuf reports whether the body is a protobuf-encoded Struct.
func isProtobuf(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	switch mt {
	case contentTypeProtobuf, "application/protobuf", "application/octet-stream":
		return true
	}
	return false
}

// readScanProto decodes a protobuf Struct body into a scan request.
func readScanProto(r *http.Request) (types.ScanRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return types.ScanRequest{}, err
	}
	if len(body) > maxRequestBody {
		return types.ScanRequest{}, errBodyTooLarge
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(body, &msg); err != nil {
		return types.ScanRequest{}, err
	}
	return scanRequestFromProto(&msg)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "protobuf marshal failed")
		return
	}
	w.Header().Set("Content-Type", contentTypeProtobuf)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
