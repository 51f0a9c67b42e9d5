package httpapi

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sio2000/gymUI-sub000/internal/checkin/types"
)

// Stations without a JSON stack send scans as a google.protobuf.Struct
// carrying the same snake_case keys as the JSON body.

func scanRequestFromProto(s *structpb.Struct) (types.ScanRequest, error) {
	var req types.ScanRequest
	for key, v := range s.GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return types.ScanRequest{}, fmt.Errorf("field %q must be a string", key)
		}
		switch key {
		case "station_id":
			req.StationID = sv.StringValue
		case "raw":
			req.Raw = sv.StringValue
		case "claimant_id":
			req.ClaimantID = sv.StringValue
		case "scanned_at":
			req.ScannedAt = sv.StringValue
		default:
			return types.ScanRequest{}, fmt.Errorf("unknown field %q", key)
		}
	}
	return req, nil
}

func scanResponseToProto(r types.ScanResponse) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"ok":          structpb.NewBoolValue(r.OK),
		"known":       structpb.NewBoolValue(r.Known),
		"outcome":     structpb.NewStringValue(r.Outcome),
		"station_id":  structpb.NewStringValue(r.StationID),
		"server_time": structpb.NewStringValue(r.ServerTime),
	}
	optional := map[string]string{
		"reason":       r.Reason,
		"shape":        r.Shape,
		"subject_id":   r.SubjectID,
		"display_name": r.DisplayName,
		"category":     r.Category,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = structpb.NewStringValue(v)
		}
	}
	return &structpb.Struct{Fields: fields}
}
