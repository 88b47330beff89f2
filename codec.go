package fleetws

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	FrameTypePositionUpdate = "position_update"
	ActionSubscribe         = "subscribe"
)

// PositionUpdate is the decoded form of one position_update frame.
type PositionUpdate struct {
	VehicleID string  `json:"vehicleId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

type positionUpdateFrame struct {
	Type      string   `json:"type"`
	VehicleID *string  `json:"vehicle_id"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Speed     *float64 `json:"speed"`
	Heading   *float64 `json:"heading"`
	Timestamp *string  `json:"timestamp"`
}

type subscribeFrame struct {
	Action     string   `json:"action"`
	VehicleIDs []string `json:"vehicle_ids"`
}

// DecodeFrame turns a raw inbound frame into a PositionUpdate. It never
// panics; every failure wraps ErrMalformedFrame or ErrUnknownFrameType.
func DecodeFrame(raw []byte) (PositionUpdate, error) {
	var frame positionUpdateFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return PositionUpdate{}, errors.Wrap(ErrMalformedFrame, err.Error())
	}

	switch frame.Type {
	case "":
		return PositionUpdate{}, errors.Wrap(ErrMalformedFrame, "missing type")
	case FrameTypePositionUpdate:
	default:
		return PositionUpdate{}, errors.Wrapf(ErrUnknownFrameType, "type %q", frame.Type)
	}

	if missing := frame.missingField(); missing != "" {
		return PositionUpdate{}, errors.Wrapf(ErrMalformedFrame, "missing field %q", missing)
	}

	return PositionUpdate{
		VehicleID: *frame.VehicleID,
		Lat:       *frame.Lat,
		Lng:       *frame.Lng,
		Speed:     *frame.Speed,
		Heading:   *frame.Heading,
		Timestamp: *frame.Timestamp,
	}, nil
}

func (f positionUpdateFrame) missingField() string {
	switch {
	case f.VehicleID == nil:
		return "vehicle_id"
	case f.Lat == nil:
		return "lat"
	case f.Lng == nil:
		return "lng"
	case f.Speed == nil:
		return "speed"
	case f.Heading == nil:
		return "heading"
	case f.Timestamp == nil:
		return "timestamp"
	}
	return ""
}

// EncodeSubscribe builds the full-replace subscribe frame for ids. A nil or
// empty slice is encoded as an empty array.
func EncodeSubscribe(ids []string) ([]byte, error) {
	frame := subscribeFrame{
		Action:     ActionSubscribe,
		VehicleIDs: make([]string, 0, len(ids)),
	}
	frame.VehicleIDs = append(frame.VehicleIDs, ids...)

	bts, err := json.Marshal(frame)
	if err != nil {
		return nil, errors.Wrap(err, "encode subscribe frame")
	}
	return bts, nil
}
