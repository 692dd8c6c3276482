package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned when a TrackRequest fails validation.
var ErrInvalidRequest = errors.New("invalid track request")

// Location is a ground observer position. Latitude and longitude are in
// degrees, altitude in kilometres above the WGS84 ellipsoid.
type Location struct {
	Latitude   float64 `json:"latitude" yaml:"latitude"`
	Longitude  float64 `json:"longitude" yaml:"longitude"`
	AltitudeKm float64 `json:"altitude_km" yaml:"altitude_km"`
}

// String renders the location as "lat,lon".
func (l Location) String() string {
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}

// Validate checks that the coordinates are in range.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %.4f out of range [-90, 90]", ErrInvalidRequest, l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %.4f out of range [-180, 180]", ErrInvalidRequest, l.Longitude)
	}
	return nil
}

// TrackRequest describes what to track and from where. It is a value type;
// copies are independent.
type TrackRequest struct {
	TargetID string   `json:"target_id"`
	Observer Location `json:"observer"`
}

// NewTrackRequest builds a validated request.
func NewTrackRequest(targetID string, observer Location) (TrackRequest, error) {
	req := TrackRequest{TargetID: strings.TrimSpace(targetID), Observer: observer}
	if err := req.Validate(); err != nil {
		return TrackRequest{}, err
	}
	return req, nil
}

// Validate reports whether the request can be resolved.
func (r TrackRequest) Validate() error {
	if strings.TrimSpace(r.TargetID) == "" {
		return fmt.Errorf("%w: target id is required", ErrInvalidRequest)
	}
	return r.Observer.Validate()
}
